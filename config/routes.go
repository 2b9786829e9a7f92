package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ktm-timetables/models"
)

// DefaultRouteFiles is the route map served to front ends when no
// ROUTE_MAP_FILE is configured.
var DefaultRouteFiles = []models.RouteFile{
	{Route: "Batu Caves - Pulau Sebang", Schedule: "Weekdays", Tables: []string{"batu_caves_weekdays_route_1", "batu_caves_weekdays_route_2"}},
	{Route: "Batu Caves - Pulau Sebang", Schedule: "Weekends", Tables: []string{"batu_caves_weekends_route_1", "batu_caves_weekends_route_2"}},
	{Route: "Tanjung Malim - Pelabuhan Klang", Schedule: "Weekdays", Tables: []string{"klang_weekdays_route_1", "klang_weekdays_route_2"}},
	{Route: "Tanjung Malim - Pelabuhan Klang", Schedule: "Weekends", Tables: []string{"klang_weekends_route_1", "klang_weekends_route_2"}},
	{Route: "Padang Besar - Butterworth", Schedule: "Not applicable", Tables: []string{"utara_padangbesar_1", "utara_padangbesar_2"}},
	{Route: "Ipoh - Butterworth", Schedule: "Not applicable", Tables: []string{"utara_ipoh_1", "utara_ipoh_2"}},
}

type routeMapFile struct {
	Routes []models.RouteFile `yaml:"routes" validate:"required,min=1,dive"`
}

// LoadRouteFiles returns the route map from path, or DefaultRouteFiles when
// path is empty.
func LoadRouteFiles(path string) ([]models.RouteFile, error) {
	if path == "" {
		return DefaultRouteFiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRouteFiles(data)
}

// ParseRouteFiles decodes and validates a YAML route map.
func ParseRouteFiles(data []byte) ([]models.RouteFile, error) {
	var f routeMapFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode route map: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid route map: %w", err)
	}
	seen := make(map[[2]string]bool, len(f.Routes))
	for _, r := range f.Routes {
		key := [2]string{r.Route, r.Schedule}
		if seen[key] {
			return nil, fmt.Errorf("route %q with schedule %q listed twice", r.Route, r.Schedule)
		}
		seen[key] = true
	}
	return f.Routes, nil
}
