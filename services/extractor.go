package services

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ktm-timetables/models"
)

// headerRow is the physical row holding the column names. Rows above it are
// captions and merged cells from the PDF layout.
const headerRow = 2

var (
	// ErrTooFewRows is returned for grids that cannot contain a header row.
	ErrTooFewRows = errors.New("not enough rows to extract header")
	// ErrNoStationColumn is returned for grids without any column.
	ErrNoStationColumn = errors.New("table has no station column")
)

// Extractor turns recognized grids into timetables.
type Extractor struct {
	// Normalizer cleans header cells.
	Normalizer *TextNormalizer
	Logger     *zap.Logger
}

// NewExtractor creates an Extractor with the default cell normalizer.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{Normalizer: NewTextNormalizer(), Logger: logger}
}

// ExtractAll converts every grid of a document. Grids that cannot be
// converted are skipped with a warning; the ordinal of each table stays its
// position among all grids.
func (e *Extractor) ExtractAll(grids []models.Grid) []*models.Timetable {
	var tables []*models.Timetable
	for i, grid := range grids {
		t, err := ExtractTable(grid, i+1, e.Normalizer)
		if err != nil {
			e.Logger.Warn("Skipping table", zap.Int("table", i+1), zap.Int("rows", len(grid)), zap.Error(err))
			continue
		}
		e.Logger.Debug("Table extracted", zap.Int("table", i+1), zap.Int("stations", t.NumRows()), zap.Int("services", len(t.Services)))
		tables = append(tables, t)
	}
	return tables
}

// ExtractTable uses the third row of grid as header and the rows after it as
// data. The first column becomes the station column whatever its header;
// other columns with a blank header are layout artifacts and are dropped.
// Headers are normalized, data cells are only trimmed.
func ExtractTable(grid models.Grid, ordinal int, tn *TextNormalizer) (*models.Timetable, error) {
	if len(grid) <= headerRow {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewRows, len(grid))
	}
	if tn == nil {
		tn = NewTextNormalizer()
	}

	width := 0
	for _, row := range grid {
		width = max(width, len(row))
	}
	if width == 0 {
		return nil, ErrNoStationColumn
	}

	header := tn.Row(pad(grid[headerRow], width))
	keep := []int{0}
	for col := 1; col < width; col++ {
		if header[col] != "" {
			keep = append(keep, col)
		}
	}

	services := uniqueNames(header, keep[1:])
	dataRows := grid[headerRow+1:]
	stations := make([]string, len(dataRows))
	cells := make([][]string, len(dataRows))
	for i, raw := range dataRows {
		row := trimRow(pad(raw, width))
		stations[i] = row[0]
		cells[i] = make([]string, len(keep)-1)
		for j, col := range keep[1:] {
			cells[i][j] = row[col]
		}
	}

	t, err := models.NewTimetable(services, stations, cells)
	if err != nil {
		return nil, err
	}
	t.Ordinal = ordinal
	t.StationHeader = header[0]
	return t, nil
}

// uniqueNames returns the headers of cols, suffixing repeats with ".1", ".2"
// so every persisted column name is distinct.
func uniqueNames(header []string, cols []int) []string {
	used := map[string]bool{strings.ToUpper(models.StationColumn): true}
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		base := header[col]
		name := base
		for n := 1; used[strings.ToUpper(name)]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		used[strings.ToUpper(name)] = true
		names = append(names, name)
	}
	return names
}

func trimRow(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
