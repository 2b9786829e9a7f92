package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/models"
	"ktm-timetables/services"
	"ktm-timetables/storage"
)

type fakeSyncer struct {
	run   *models.SyncRun
	err   error
	calls chan struct{}
}

func (f *fakeSyncer) Run(context.Context) (*models.SyncRun, error) {
	if f.calls != nil {
		defer func() { f.calls <- struct{}{} }()
	}
	return f.run, f.err
}

var testRoutes = []models.RouteFile{
	{Route: "Batu Caves - Pulau Sebang", Schedule: "Weekdays", Tables: []string{"batu_caves_weekdays_route_1", "batu_caves_weekdays_route_2"}},
	{Route: "Ipoh - Butterworth", Schedule: "Not applicable", Tables: []string{"utara_ipoh_1", "utara_ipoh_2"}},
}

func newTestAPI(t *testing.T) (*API, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewParquetStore(t.TempDir(), zap.NewNop())
	north, err := models.NewTimetable(
		[]string{"2001", "2003", "2005"},
		[]string{"KL SENTRAL", "KUALA LUMPUR", "BATU CAVES"},
		[][]string{{"09:30", "10:15", "11:00"}, {"09:35", "10:20", "11:05"}, {"09:50", "10:40", "11:20"}},
	)
	require.NoError(t, err)
	south, err := models.NewTimetable(
		[]string{"2002"},
		[]string{"BATU CAVES", "KUALA LUMPUR", "KL SENTRAL"},
		[][]string{{"06:00"}, {"06:15"}, {"06:30"}},
	)
	require.NoError(t, err)
	_, err = store.WriteTables(map[string]*models.Timetable{
		"batu_caves_weekdays_route_1": north,
		"batu_caves_weekdays_route_2": south,
	})
	require.NoError(t, err)

	loc, err := time.LoadLocation("Asia/Kuala_Lumpur")
	require.NoError(t, err)
	lookup := services.NewLookupService(store, testRoutes, time.Minute, zap.NewNop())
	api := NewAPI(&config.Config{APISecretKey: "secret"}, lookup, store, &fakeSyncer{}, loc, zap.NewNop())
	// 10:00 in Kuala Lumpur
	api.Now = func() time.Time { return time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC) }

	router := gin.New()
	api.SetupRoutes(router)
	return api, router
}

func get(t *testing.T, router *gin.Engine, path string, params url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path+"?"+params.Encode(), nil)
	router.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func tripQuery(from, to string, extra ...string) url.Values {
	v := url.Values{"route": {"Batu Caves - Pulau Sebang"}, "schedule": {"Weekdays"}, "from": {from}, "to": {to}}
	for i := 0; i+1 < len(extra); i += 2 {
		v.Set(extra[i], extra[i+1])
	}
	return v
}

func TestHealth(t *testing.T) {
	_, router := newTestAPI(t)
	w, body := get(t, router, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestTripsDefaultCutoffIsLocalTime(t *testing.T) {
	_, router := newTestAPI(t)

	w, body := get(t, router, "/trips", tripQuery("KL SENTRAL", "BATU CAVES"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10:00", body["after"])

	trips := body["trips"].([]any)
	require.Len(t, trips, 2)
	first := trips[0].(map[string]any)
	assert.Equal(t, "2003", first["service_id"])
	assert.Equal(t, true, first["next"])
	assert.Equal(t, false, trips[1].(map[string]any)["next"])
	assert.Equal(t, "10:15", body["next"].(map[string]any)["departure_time"])
}

func TestTripsCutoffParameters(t *testing.T) {
	_, router := newTestAPI(t)

	tests := []struct {
		name   string
		params url.Values
		code   int
		trips  int
	}{
		{"explicit after", tripQuery("KL SENTRAL", "BATU CAVES", "after", "10:30"), http.StatusOK, 1},
		{"all services", tripQuery("KL SENTRAL", "BATU CAVES", "all", "true"), http.StatusOK, 3},
		{"other direction", tripQuery("BATU CAVES", "KL SENTRAL", "all", "true"), http.StatusOK, 1},
		{"unknown station", tripQuery("KL SENTRAL", "IPOH"), http.StatusOK, 0},
		{"invalid after", tripQuery("KL SENTRAL", "BATU CAVES", "after", "1030"), http.StatusBadRequest, 0},
		{"after out of range", tripQuery("KL SENTRAL", "BATU CAVES", "after", "25:00"), http.StatusBadRequest, 0},
		{"same station", tripQuery("KL SENTRAL", "KL SENTRAL"), http.StatusBadRequest, 0},
		{"missing destination", tripQuery("KL SENTRAL", ""), http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := get(t, router, "/trips", tt.params)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code == http.StatusOK {
				assert.Len(t, body["trips"], tt.trips)
			}
		})
	}
}

func TestTripsLookupErrors(t *testing.T) {
	_, router := newTestAPI(t)

	params := tripQuery("KL SENTRAL", "BATU CAVES")
	params.Set("route", "Nowhere")
	w, _ := get(t, router, "/trips", params)
	assert.Equal(t, http.StatusNotFound, w.Code)

	params.Set("route", "Ipoh - Butterworth")
	params.Set("schedule", "Not applicable")
	w, _ = get(t, router, "/trips", params)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutesAndStations(t *testing.T) {
	_, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var routes []models.RouteFile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &routes))
	assert.Equal(t, testRoutes, routes)

	w, body := get(t, router, "/routes/stations", url.Values{"route": {"Batu Caves - Pulau Sebang"}, "schedule": {"Weekdays"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"BATU CAVES", "KL SENTRAL", "KUALA LUMPUR"}, body["stations"])

	w, _ = get(t, router, "/routes/stations", url.Values{"route": {"Batu Caves - Pulau Sebang"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetables(t *testing.T) {
	_, router := newTestAPI(t)

	w, body := get(t, router, "/timetables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"batu_caves_weekdays_route_1", "batu_caves_weekdays_route_2"}, body["tables"])
}

func TestSyncRequiresAPIKey(t *testing.T) {
	api, router := newTestAPI(t)
	syncer := &fakeSyncer{run: &models.SyncRun{ID: "run-1", Tables: 2}, calls: make(chan struct{}, 1)}
	api.Sync = syncer

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	req.Header.Set("X-API-KEY", "secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-syncer.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("sync was not started")
	}
}

func TestRunsWithoutDatabase(t *testing.T) {
	api, router := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	api.Sync = &fakeSyncer{run: &models.SyncRun{ID: "run-1", Tables: 2}}
	api.RunSync(context.Background())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	var runs []models.SyncRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	// a skipped run keeps the previous report
	api.Sync = &fakeSyncer{err: services.ErrRunInProgress}
	api.RunSync(context.Background())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestNewRecognizer(t *testing.T) {
	r, err := newRecognizer(&config.Config{TableBackend: "layout"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "layout", r.Name())

	r, err = newRecognizer(&config.Config{TableBackend: "command", TableCommand: "extract-tables --json"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "command", r.Name())

	_, err = newRecognizer(&config.Config{TableBackend: "command"}, zap.NewNop())
	assert.Error(t, err)

	_, err = newRecognizer(&config.Config{TableBackend: "ocr"}, zap.NewNop())
	assert.Error(t, err)
}
