package models

import (
	"errors"
	"fmt"
	"strings"
)

// StationColumn is the canonical name of the first column of every timetable.
const StationColumn = "STATION"

// TrainNumberColumn is the header the northern corridor uses for train numbers.
const TrainNumberColumn = "NOMBOR TREN"

// Grid is a raw table as returned by a table-recognition backend.
type Grid [][]string

// Timetable is a station-by-service grid. Row order follows the stations
// along the track in one direction of travel.
type Timetable struct {
	// Ordinal is the 1-based position of the table inside its source document.
	Ordinal  int        `json:"ordinal"`
	Services []string   `json:"services"`
	Stations []string   `json:"stations"`
	Cells    [][]string `json:"cells"`

	// StationHeader is the header the station column had in the source
	// document. It is not persisted.
	StationHeader string `json:"-"`
}

// NewTimetable validates the shape of a timetable: one cell row per station,
// one cell per service, unique service names, none named like the station column.
func NewTimetable(services, stations []string, cells [][]string) (*Timetable, error) {
	if len(cells) != len(stations) {
		return nil, fmt.Errorf("timetable has %d stations but %d cell rows", len(stations), len(cells))
	}
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if strings.EqualFold(s, StationColumn) {
			return nil, errors.New("service column may not be named " + StationColumn)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("duplicate service column %q", s)
		}
		seen[s] = struct{}{}
	}
	for i, row := range cells {
		if len(row) != len(services) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(services))
		}
	}
	return &Timetable{Services: services, Stations: stations, Cells: cells}, nil
}

// NumRows returns the number of station rows.
func (t *Timetable) NumRows() int {
	return len(t.Stations)
}

// Headers returns all column names, station column first.
func (t *Timetable) Headers() []string {
	return append([]string{StationColumn}, t.Services...)
}

// StationIndex returns the row of the first occurrence of station, or -1.
func (t *Timetable) StationIndex(station string) int {
	for i, s := range t.Stations {
		if s == station {
			return i
		}
	}
	return -1
}

// ServiceIndex returns the column position of a service, or -1.
func (t *Timetable) ServiceIndex(service string) int {
	for i, s := range t.Services {
		if s == service {
			return i
		}
	}
	return -1
}

// Cell returns the time token of a service at a station.
func (t *Timetable) Cell(station, service string) (string, bool) {
	row, col := t.StationIndex(station), t.ServiceIndex(service)
	if row < 0 || col < 0 {
		return "", false
	}
	return t.Cells[row][col], true
}

// ColumnFold returns the values of the column whose header equals name
// ignoring case. The station column answers to StationColumn and to its
// source header.
func (t *Timetable) ColumnFold(name string) ([]string, bool) {
	if strings.EqualFold(name, StationColumn) || (t.StationHeader != "" && strings.EqualFold(name, t.StationHeader)) {
		return t.Stations, true
	}
	for col, s := range t.Services {
		if !strings.EqualFold(s, name) {
			continue
		}
		values := make([]string, len(t.Cells))
		for row := range t.Cells {
			values[row] = t.Cells[row][col]
		}
		return values, true
	}
	return nil, false
}

// UpperStations upper-cases the station column in place.
func (t *Timetable) UpperStations() {
	for i, s := range t.Stations {
		t.Stations[i] = strings.ToUpper(s)
	}
}
