package providers

import (
	"context"

	"ktm-timetables/models"
)

// Recognizer is the interface every table-recognition backend implements.
type Recognizer interface {
	// Tables detects the tables on the given pages of a PDF document and
	// returns them in document order.
	Tables(ctx context.Context, document []byte, pages string) ([]models.Grid, error)

	// Name returns the unique name of the backend (e.g. "layout").
	Name() string
}
