package services

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"ktm-timetables/models"
)

// ErrRouteNotFound is returned for a route and schedule missing from the route map.
var ErrRouteNotFound = errors.New("route not found")

// TableReader loads persisted timetables by name.
type TableReader interface {
	ReadTable(name string) (*models.Timetable, error)
}

// TripQuery selects the trips between two stations. After is a cutoff in
// minutes since midnight; nil returns every service.
type TripQuery struct {
	Departure   string
	Destination string
	After       *int
}

// ParseMinutes converts a time token into minutes since midnight. Tokens with
// a colon split on it. Without a colon, tokens of up to three characters are
// plain minutes and longer ones end in two minute digits ("1026" is 10:26).
func ParseMinutes(token string) (int, error) {
	t := strings.TrimSpace(token)
	var h, m string
	switch {
	case strings.Contains(t, ":"):
		var ok bool
		h, m, ok = strings.Cut(t, ":")
		if !ok || strings.Contains(m, ":") {
			return 0, fmt.Errorf("invalid time %q", token)
		}
	case len(t) <= 3:
		h, m = "0", t
	default:
		h, m = t[:len(t)-2], t[len(t)-2:]
	}
	hours, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", token, err)
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", token, err)
	}
	return hours*60 + minutes, nil
}

// ChooseDirection returns the table that lists departure at a row index not
// after its index in the other table. Ties and the case where only a lists
// the station favour a.
func ChooseDirection(a, b *models.Timetable, departure string) *models.Timetable {
	idxA, idxB := a.StationIndex(departure), b.StationIndex(departure)
	if idxA >= 0 && (idxB < 0 || idxA <= idxB) {
		return a
	}
	return b
}

// FindTrips lists the services running from q.Departure to q.Destination in
// column order. Services with an empty cell at either station are skipped,
// as are services departing before q.After. A time token that cannot be
// parsed is never filtered out.
func FindTrips(a, b *models.Timetable, q TripQuery) []models.Trip {
	t := ChooseDirection(a, b, q.Departure)
	dep, dst := t.StationIndex(q.Departure), t.StationIndex(q.Destination)
	if dep < 0 || dst < 0 {
		return []models.Trip{}
	}

	trips := []models.Trip{}
	for col, service := range t.Services {
		depTime := strings.TrimSpace(t.Cells[dep][col])
		dstTime := strings.TrimSpace(t.Cells[dst][col])
		if depTime == "" || dstTime == "" {
			continue
		}
		if q.After != nil {
			if m, err := ParseMinutes(depTime); err == nil && m < *q.After {
				continue
			}
		}
		trips = append(trips, models.Trip{
			ServiceID:        service,
			DepartureStation: q.Departure,
			DepartureTime:    depTime,
			ArrivalStation:   q.Destination,
			ArrivalTime:      dstTime,
		})
	}
	return trips
}

// NextTrip returns the index of the trip with the earliest departure, or -1
// when no departure time can be parsed.
func NextTrip(trips []models.Trip) int {
	next, best := -1, 0
	for i, trip := range trips {
		m, err := ParseMinutes(trip.DepartureTime)
		if err != nil {
			continue
		}
		if next < 0 || m < best {
			next, best = i, m
		}
	}
	return next
}

// LookupService answers trip queries against the persisted tables named in
// the route map. Loaded tables are cached for a while; tables are never
// modified after loading.
type LookupService struct {
	Store  TableReader
	Logger *zap.Logger

	routes []models.RouteFile
	tables *cache.Cache
}

// NewLookupService creates a LookupService caching tables for ttl.
func NewLookupService(store TableReader, routes []models.RouteFile, ttl time.Duration, logger *zap.Logger) *LookupService {
	return &LookupService{
		Store:  store,
		Logger: logger,
		routes: routes,
		tables: cache.New(ttl, 2*ttl),
	}
}

// Routes returns the route map.
func (s *LookupService) Routes() []models.RouteFile {
	return s.routes
}

// Route finds a route by display name and schedule, ignoring case.
func (s *LookupService) Route(route, schedule string) (models.RouteFile, bool) {
	for _, r := range s.routes {
		if strings.EqualFold(r.Route, route) && strings.EqualFold(r.Schedule, schedule) {
			return r, true
		}
	}
	return models.RouteFile{}, false
}

// Invalidate drops all cached tables, e.g. after a sync run replaced them.
func (s *LookupService) Invalidate() {
	s.tables.Flush()
}

func (s *LookupService) table(name string) (*models.Timetable, error) {
	if t, ok := s.tables.Get(name); ok {
		return t.(*models.Timetable), nil
	}
	t, err := s.Store.ReadTable(name)
	if err != nil {
		return nil, err
	}
	s.tables.SetDefault(name, t)
	return t, nil
}

func (s *LookupService) pair(route, schedule string) (*models.Timetable, *models.Timetable, error) {
	r, ok := s.Route(route, schedule)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s / %s", ErrRouteNotFound, route, schedule)
	}
	a, err := s.table(r.Tables[0])
	if err != nil {
		return nil, nil, err
	}
	b, err := s.table(r.Tables[1])
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// Stations returns the sorted, distinct, non-empty stations of the first
// table of a route.
func (s *LookupService) Stations(route, schedule string) ([]string, error) {
	r, ok := s.Route(route, schedule)
	if !ok {
		return nil, fmt.Errorf("%w: %s / %s", ErrRouteNotFound, route, schedule)
	}
	t, err := s.table(r.Tables[0])
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(t.Stations))
	stations := []string{}
	for _, st := range t.Stations {
		if st = strings.TrimSpace(st); st != "" && !seen[st] {
			seen[st] = true
			stations = append(stations, st)
		}
	}
	sort.Strings(stations)
	return stations, nil
}

// Trips runs FindTrips on the two tables of a route. A station missing from
// the tables gives an empty result, not an error.
func (s *LookupService) Trips(route, schedule string, q TripQuery) ([]models.Trip, error) {
	a, b, err := s.pair(route, schedule)
	if err != nil {
		return nil, err
	}
	trips := FindTrips(a, b, q)
	s.Logger.Debug("Trips looked up",
		zap.String("route", route),
		zap.String("departure", q.Departure),
		zap.String("destination", q.Destination),
		zap.Int("trips", len(trips)))
	return trips, nil
}
