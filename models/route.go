package models

// RouteBucket is the northern corridor segment a table was matched to.
type RouteBucket int

const (
	// BucketUnclassified tables are persisted under their positional name.
	BucketUnclassified RouteBucket = iota
	BucketIpoh
	BucketPadangBesar
)

// String returns the name used in persisted table names.
func (b RouteBucket) String() string {
	switch b {
	case BucketIpoh:
		return "ipoh"
	case BucketPadangBesar:
		return "padangbesar"
	default:
		return "route"
	}
}

// RouteFile maps a front-end route and schedule to its two direction tables.
type RouteFile struct {
	Route    string   `json:"route" yaml:"route" validate:"required"`
	Schedule string   `json:"schedule" yaml:"schedule" validate:"required"`
	Tables   []string `json:"tables" yaml:"tables" validate:"len=2,dive,required"`
}

// Trip is one service that runs from the departure to the destination station.
type Trip struct {
	ServiceID        string `json:"service_id"`
	DepartureStation string `json:"departure_station"`
	DepartureTime    string `json:"departure_time"`
	ArrivalStation   string `json:"arrival_station"`
	ArrivalTime      string `json:"arrival_time"`
}
