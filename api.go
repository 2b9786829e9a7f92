package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/models"
	"ktm-timetables/services"
	"ktm-timetables/storage"
)

// TableLister lists the persisted timetables.
type TableLister interface {
	List() ([]string, error)
}

// Syncer runs the timetable pipeline.
type Syncer interface {
	Run(ctx context.Context) (*models.SyncRun, error)
}

// RunLister reads the run history.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// API serves the lookup contract to the front ends and lets operators
// trigger and inspect sync runs.
type API struct {
	Config   *config.Config
	Lookup   *services.LookupService
	Tables   TableLister
	Sync     Syncer
	Runs     RunLister // nil without a database
	Location *time.Location
	Logger   *zap.Logger
	Now      func() time.Time

	mu      sync.Mutex
	lastRun *models.SyncRun
}

// NewAPI creates an API answering time-of-day questions in loc.
func NewAPI(cfg *config.Config, lookup *services.LookupService, tables TableLister, syncer Syncer, loc *time.Location, logger *zap.Logger) *API {
	return &API{
		Config:   cfg,
		Lookup:   lookup,
		Tables:   tables,
		Sync:     syncer,
		Location: loc,
		Logger:   logger,
		Now:      time.Now,
	}
}

// RunSync runs one sync, remembers its report and drops cached tables.
func (a *API) RunSync(ctx context.Context) {
	run, err := a.Sync.Run(ctx)
	if errors.Is(err, services.ErrRunInProgress) {
		a.Logger.Warn("Sync skipped, another run is in progress")
		return
	}
	a.mu.Lock()
	a.lastRun = run
	a.mu.Unlock()
	a.Lookup.Invalidate()
	if err != nil {
		a.Logger.Error("Sync job failed", zap.Error(err))
		return
	}
	a.Logger.Info("Sync job completed", zap.Int("tables", run.Tables))
}

// SetupRoutes registers all endpoints.
func (a *API) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rg := router.Group("/routes")
	rg.GET("", a.listRoutes)
	rg.GET("/stations", a.listStations)

	router.GET("/trips", a.findTrips)
	router.GET("/timetables", a.listTimetables)
	router.GET("/runs", a.listRuns)

	router.POST("/sync", apiKeyAuthMiddleware(a.Config), func(c *gin.Context) {
		go a.RunSync(context.Background())
		c.JSON(http.StatusAccepted, gin.H{"message": "Timetable sync triggered."})
	})
}

func (a *API) listRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, a.Lookup.Routes())
}

func (a *API) listStations(c *gin.Context) {
	route, schedule := c.Query("route"), c.Query("schedule")
	if route == "" || schedule == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route and schedule are required"})
		return
	}
	stations, err := a.Lookup.Stations(route, schedule)
	if err != nil {
		a.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"route": route, "schedule": schedule, "stations": stations})
}

type tripResponse struct {
	models.Trip
	Next bool `json:"next"`
}

func (a *API) findTrips(c *gin.Context) {
	route, schedule := c.Query("route"), c.Query("schedule")
	from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to"))
	if route == "" || schedule == "" || from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "route, schedule, from and to are required"})
		return
	}
	if from == to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "departure and destination cannot be the same"})
		return
	}

	q := services.TripQuery{Departure: from, Destination: to}
	if all, _ := strconv.ParseBool(c.Query("all")); !all {
		after, err := a.cutoff(c.Query("after"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after, expected HH:MM"})
			return
		}
		q.After = &after
	}

	trips, err := a.Lookup.Trips(route, schedule, q)
	if err != nil {
		a.lookupError(c, err)
		return
	}
	next := services.NextTrip(trips)
	resp := make([]tripResponse, len(trips))
	for i, t := range trips {
		resp[i] = tripResponse{Trip: t, Next: i == next}
	}

	body := gin.H{"route": route, "schedule": schedule, "departure": from, "destination": to, "trips": resp}
	if q.After != nil {
		body["after"] = formatMinutes(*q.After)
	}
	if next >= 0 {
		body["next"] = trips[next]
	}
	c.JSON(http.StatusOK, body)
}

// cutoff parses an HH:MM cutoff, defaulting to the current local time.
func (a *API) cutoff(after string) (int, error) {
	if after == "" {
		now := a.Now().In(a.Location)
		return now.Hour()*60 + now.Minute(), nil
	}
	if !strings.Contains(after, ":") {
		return 0, errors.New("missing colon")
	}
	m, err := services.ParseMinutes(after)
	if err != nil || m < 0 || m >= 24*60 {
		return 0, errors.New("out of range")
	}
	return m, nil
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (a *API) lookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	case errors.Is(err, storage.ErrTableNotFound):
		a.Logger.Warn("Timetable missing for route", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "timetable not available yet"})
	default:
		a.Logger.Error("Timetable lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup error"})
	}
}

func (a *API) listTimetables(c *gin.Context) {
	names, err := a.Tables.List()
	if err != nil {
		a.Logger.Error("Listing timetables failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": names})
}

func (a *API) listRuns(c *gin.Context) {
	if a.Runs == nil {
		a.mu.Lock()
		last := a.lastRun
		a.mu.Unlock()
		runs := []*models.SyncRun{}
		if last != nil {
			runs = append(runs, last)
		}
		c.JSON(http.StatusOK, runs)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := a.Runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		a.Logger.Error("Database query for runs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, runs)
}
