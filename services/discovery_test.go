package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ktm-timetables/models"
)

const listingHTML = `<html><body>
<a href="#" data-target="#reusemodal" data-dl="/pdf/BC-PS-Weekday.pdf" alt="Komuter Weekdays">
  <b>Batu Caves - Pulau Sebang Effective 1st December 2024</b></a>
<a href="#" data-target="#reusemodal" data-dl="https://cdn.example.com/pdf/BCPS_Komuter Weekend mulai 25 Ogos 2025.pdf" alt="Saturday, Sunday &amp; Public Holiday">
  <b>Batu Caves - Pulau Sebang</b></a>
<a href="#" data-target="#reusemodal" data-dl="/2023/Jadual-Komuter-Utara-16-Sept-2023.pdf" alt="Komuter Utara">
  <b>Komuter Utara</b></a>
<a href="#" data-target="#reusemodal" data-dl="/pdf/notice.pdf" alt="Notice"></a>
<a href="#" data-target="#reusemodal" alt="No download"><b>Ignored</b></a>
<a href="/pdf/other.pdf" data-dl="/pdf/other.pdf"><b>Not a modal trigger</b></a>
</body></html>`

func newTestDiscoverer(listingURL string) *Discoverer {
	return NewDiscoverer(listingURL, NewHTTPClient("test-agent", 5*time.Second), zap.NewNop())
}

func TestParseListing(t *testing.T) {
	base, _ := url.Parse("https://www.ktmb.com.my/TrainTime.html")
	d := newTestDiscoverer(base.String())

	docs, err := d.ParseListing(strings.NewReader(listingHTML), base)
	require.NoError(t, err)
	require.Len(t, docs, 4)

	weekday := docs[0]
	assert.Equal(t, "BATU CAVES - PULAU SEBANG EFFECTIVE 1ST DECEMBER 2024", weekday.Title)
	assert.Equal(t, "https://www.ktmb.com.my/pdf/BC-PS-Weekday.pdf", weekday.DocumentURL)
	assert.Equal(t, models.ScheduleWeekdays, weekday.ScheduleKind)
	assert.Equal(t, "1st December 2024", weekday.EffectiveText)
	require.True(t, weekday.Resolved())
	assert.Equal(t, "2024-12-01", weekday.EffectiveISO())

	weekend := docs[1]
	assert.Equal(t, models.ScheduleWeekends, weekend.ScheduleKind)
	assert.Equal(t, "https://cdn.example.com/pdf/BCPS_Komuter%20Weekend%20mulai%2025%20Ogos%202025.pdf", weekend.DocumentURL)
	assert.Equal(t, "25 August 2025", weekend.EffectiveText)
	assert.Equal(t, "2025-08-25", weekend.EffectiveISO())

	utara := docs[2]
	assert.Equal(t, models.ScheduleUnknown, utara.ScheduleKind)
	assert.Equal(t, "KOMUTER UTARA", utara.Title)
	assert.Equal(t, "2023-09-16", utara.EffectiveISO())

	notice := docs[3]
	assert.False(t, notice.HasTitle())
	assert.False(t, notice.Resolved())
	assert.Empty(t, notice.EffectiveText)
}

func TestClassifySchedule(t *testing.T) {
	tests := map[string]models.ScheduleKind{
		"Komuter weekday":            models.ScheduleWeekdays,
		"WEEKDAYS ONLY":              models.ScheduleWeekdays,
		"weekend":                    models.ScheduleWeekends,
		"Sunday service":             models.ScheduleWeekends,
		"Cuti Umum / Public Holiday": models.ScheduleWeekends,
		"ETS":                        models.ScheduleUnknown,
		"":                           models.ScheduleUnknown,
	}
	for label, want := range tests {
		assert.Equal(t, want, classifySchedule(label), label)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	docs, err := newTestDiscoverer(srv.URL + "/TrainTime.html").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Equal(t, srv.URL+"/pdf/BC-PS-Weekday.pdf", docs[0].DocumentURL)
}

func TestFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	docs, err := newTestDiscoverer(srv.URL).Fetch(context.Background())
	assert.ErrorContains(t, err, "503")
	assert.Empty(t, docs)
}
