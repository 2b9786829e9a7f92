package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/models"
	"ktm-timetables/storage"
)

func listingAnchor(title, schedule, link string) string {
	return fmt.Sprintf(`<a href="#" data-target="#reusemodal" data-dl="%s" alt="%s"><b>%s</b></a>`, link, schedule, title)
}

var (
	batuWeekdays  = listingAnchor("Batu Caves - Pulau Sebang Effective 1 March 2024", "Weekdays", "/pdf/bc-weekdays.pdf")
	klangMarch    = listingAnchor("Tg. Malim - Pelabuhan Klang Effective 1 March 2024", "Weekdays", "/pdf/klang-march.pdf")
	klangJune     = listingAnchor("Tg. Malim - Pelabuhan Klang Effective 1 June 2024", "Weekdays", "/pdf/klang-june.pdf")
	batuWeekendNA = listingAnchor("Batu Caves - Pulau Sebang Effective 2 March 2024", "Weekends", "/pdf/missing.pdf")
)

// fakeSite serves a swappable listing page and a tiny PDF per document whose
// body carries the document name.
type fakeSite struct {
	*httptest.Server
	mu      sync.Mutex
	listing string
}

func newFakeSite(t *testing.T, anchors ...string) *fakeSite {
	site := &fakeSite{}
	site.setListing(anchors...)
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		defer site.mu.Unlock()
		io.WriteString(w, site.listing)
	})
	mux.HandleFunc("/pdf/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(path.Base(r.URL.Path), ".pdf")
		if name == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4\n"+name)
	})
	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func (s *fakeSite) setListing(anchors ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = "<html><body>" + strings.Join(anchors, "\n") + "</body></html>"
}

// fakeRecognizer returns one timetable grid carrying the document name and
// one grid too short to hold a header.
type fakeRecognizer struct{}

func (fakeRecognizer) Name() string { return "fake" }

func (fakeRecognizer) Tables(_ context.Context, doc []byte, _ string) ([]models.Grid, error) {
	id := strings.TrimSpace(strings.TrimPrefix(string(doc), "%PDF-1.4"))
	return []models.Grid{
		{
			{"KTM KOMUTER"},
			{"Jadual Perjalanan"},
			{"Stesen", "2001", "Source"},
			{"KL Sentral", "06:00", id},
			{"Batu Caves", "06:30", id},
		},
		{{"Nota"}},
	}, nil
}

type recordingRuns struct {
	runs      []*models.SyncRun
	inventory int
}

func (r *recordingRuns) SaveInventory(_ context.Context, _ string, docs []models.CandidateDocument) error {
	r.inventory = len(docs)
	return nil
}

func (r *recordingRuns) SaveRun(_ context.Context, run *models.SyncRun) error {
	r.runs = append(r.runs, run)
	return nil
}

type recordingMirror struct{ files []string }

func (m *recordingMirror) Upload(_ context.Context, files []string) (int, error) {
	m.files = append(m.files, files...)
	return len(files), nil
}

func newTestSyncService(t *testing.T, site *fakeSite) (*SyncService, *storage.ParquetStore) {
	t.Helper()
	cfg := &config.Config{
		ListingURL:      site.URL + "/listing",
		RouteTitles:     "TG. MALIM - PELABUHAN KLANG,BATU CAVES - PULAU SEBANG",
		NorthernKeyword: "UTARA",
		PageRange:       "1-end",
	}
	store := storage.NewParquetStore(t.TempDir(), zap.NewNop())
	svc := NewSyncService(cfg, NewHTTPClient("test-agent", 5*time.Second), fakeRecognizer{}, store, zap.NewNop())
	return svc, store
}

func sourceOf(t *testing.T, store *storage.ParquetStore, name string) string {
	t.Helper()
	table, err := store.ReadTable(name)
	require.NoError(t, err)
	cell, ok := table.Cell("KL Sentral", "Source")
	require.True(t, ok)
	return cell
}

func TestSyncRunEndToEnd(t *testing.T) {
	site := newFakeSite(t, batuWeekdays, klangMarch)
	svc, store := newTestSyncService(t, site)
	runs, mirror := &recordingRuns{}, &recordingMirror{}
	svc.Runs, svc.Mirror = runs, mirror

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Candidates)
	assert.Equal(t, 2, first.Resolved)
	assert.Equal(t, 2, first.Selected)
	assert.Equal(t, 2, first.Tables)
	assert.Equal(t, 2, first.Skipped)
	assert.Empty(t, first.Error)
	assert.NotNil(t, first.FinishedAt)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"batu_caves_weekdays_route_1", "klang_weekdays_route_1"}, names)
	assert.Equal(t, names, first.TableNames)
	assert.Equal(t, "bc-weekdays", sourceOf(t, store, "batu_caves_weekdays_route_1"))
	assert.Equal(t, "klang-march", sourceOf(t, store, "klang_weekdays_route_1"))

	require.Len(t, runs.runs, 1)
	assert.Equal(t, 2, runs.inventory)
	assert.Len(t, mirror.files, 3, "inventory and both tables are mirrored")

	// a newer Klang document replaces only the Klang selection
	site.setListing(batuWeekdays, klangMarch, klangJune)
	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Selections["batu_caves_weekdays"], second.Selections["batu_caves_weekdays"])
	assert.NotEqual(t, first.Selections["klang_weekdays"], second.Selections["klang_weekdays"])
	assert.True(t, strings.HasSuffix(second.Selections["klang_weekdays"], "/pdf/klang-june.pdf"))

	names, err = store.List()
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.Equal(t, "bc-weekdays", sourceOf(t, store, "batu_caves_weekdays_route_1"))
	assert.Equal(t, "klang-june", sourceOf(t, store, "klang_weekdays_route_1"))

	inventory, err := store.ReadInventory()
	require.NoError(t, err)
	assert.Len(t, inventory, 3)
}

func TestSyncRunSkipsFailedDocument(t *testing.T) {
	site := newFakeSite(t, batuWeekdays, batuWeekendNA, klangMarch)
	svc, store := newTestSyncService(t, site)

	run, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, run.Selected)
	assert.Equal(t, 2, run.Tables)

	names, err := store.List()
	require.NoError(t, err)
	assert.NotContains(t, names, "batu_caves_weekends_route_1")
}

func TestSyncRunNoCandidates(t *testing.T) {
	site := newFakeSite(t)
	svc, _ := newTestSyncService(t, site)
	runs := &recordingRuns{}
	svc.Runs = runs

	run, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.NotEmpty(t, run.Error)
	require.Len(t, runs.runs, 1, "failed runs are recorded too")

	svc.Discoverer.ListingURL = site.URL + "/nope"
	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestSyncRunRejectsConcurrentRun(t *testing.T) {
	site := newFakeSite(t, batuWeekdays)
	svc, _ := newTestSyncService(t, site)

	svc.mu.Lock()
	_, err := svc.Run(context.Background())
	svc.mu.Unlock()

	assert.True(t, errors.Is(err, ErrRunInProgress))
}

func TestDownloadRejectsNonPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()
	svc := &SyncService{Client: srv.Client()}

	_, err := svc.download(context.Background(), srv.URL+"/a.pdf")
	assert.ErrorContains(t, err, "not a PDF")
}
