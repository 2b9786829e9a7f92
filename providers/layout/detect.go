package layout

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"ktm-timetables/models"
)

// Fragment is a run of text at a position on the page. Y grows upwards.
type Fragment struct {
	X, Y     float64
	W        float64
	FontSize float64
	S        string
}

// Options tune the detection. Distances are multiples of the font size.
type Options struct {
	LineTolerance float64
	CellGap       float64
	SpaceGap      float64
	BlockGap      float64
	WideCellRatio float64
	MinRows       int
	MinColumns    int
}

// DefaultOptions returns values that work for the KTM timetable layout.
func DefaultOptions() Options {
	return Options{
		LineTolerance: 0.5,
		CellGap:       0.6,
		SpaceGap:      0.15,
		BlockGap:      4,
		WideCellRatio: 0.4,
		MinRows:       3,
		MinColumns:    2,
	}
}

type cell struct {
	x0, x1 float64
	text   string
}

type line struct {
	y     float64
	cells []cell
}

type band struct {
	x0, x1 float64
}

func (b band) center() float64 { return (b.x0 + b.x1) / 2 }

// DetectTables groups text fragments into lines, lines into blocks and
// blocks into grids. Blocks with fewer than MinRows lines or MinColumns
// columns are discarded.
func DetectTables(frags []Fragment, opts Options) []models.Grid {
	lines := groupLines(frags, opts)
	var grids []models.Grid
	for _, block := range splitBlocks(lines, opts) {
		if len(block) < opts.MinRows {
			continue
		}
		bands := columnBands(block, opts)
		if len(bands) < opts.MinColumns {
			continue
		}
		grids = append(grids, toGrid(block, bands))
	}
	return grids
}

func fontSize(f Fragment) float64 {
	if f.FontSize <= 0 {
		return 10
	}
	return f.FontSize
}

func width(f Fragment) float64 {
	if f.W > 0 {
		return f.W
	}
	return 0.5 * fontSize(f) * float64(utf8.RuneCountInString(f.S))
}

func groupLines(frags []Fragment, opts Options) []line {
	sorted := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if strings.TrimSpace(f.S) != "" {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]Fragment
	for _, f := range sorted {
		n := len(rows)
		if n > 0 && math.Abs(rows[n-1][0].Y-f.Y) <= opts.LineTolerance*fontSize(f) {
			rows[n-1] = append(rows[n-1], f)
			continue
		}
		rows = append(rows, []Fragment{f})
	}

	lines := make([]line, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		lines = append(lines, line{y: row[0].Y, cells: mergeCells(row, opts)})
	}
	return lines
}

func mergeCells(row []Fragment, opts Options) []cell {
	var cells []cell
	var sb strings.Builder
	var cur cell
	for i, f := range row {
		fs := fontSize(f)
		x1 := f.X + width(f)
		if i > 0 {
			gap := f.X - cur.x1
			if gap <= opts.CellGap*fs {
				if gap > opts.SpaceGap*fs {
					sb.WriteByte(' ')
				}
				sb.WriteString(f.S)
				cur.x1 = math.Max(cur.x1, x1)
				continue
			}
			cur.text = strings.TrimSpace(sb.String())
			cells = append(cells, cur)
			sb.Reset()
		}
		cur = cell{x0: f.X, x1: x1}
		sb.WriteString(f.S)
	}
	if len(row) > 0 {
		cur.text = strings.TrimSpace(sb.String())
		cells = append(cells, cur)
	}
	return cells
}

func splitBlocks(lines []line, opts Options) [][]line {
	if len(lines) == 0 {
		return nil
	}
	gaps := make([]float64, 0, len(lines)-1)
	for i := 1; i < len(lines); i++ {
		gaps = append(gaps, lines[i-1].y-lines[i].y)
	}
	limit := math.Inf(1)
	if m := median(gaps); m > 0 {
		limit = opts.BlockGap * m
	}

	var blocks [][]line
	start := 0
	for i, g := range gaps {
		if g > limit {
			blocks = append(blocks, lines[start:i+1])
			start = i + 1
		}
	}
	return append(blocks, lines[start:])
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// columnBands merges the x-intervals of all cells into bands. Cells spanning
// a large share of the block (titles, notes) do not shape the bands.
func columnBands(block []line, opts Options) []band {
	left, right := math.Inf(1), math.Inf(-1)
	for _, l := range block {
		for _, c := range l.cells {
			left = math.Min(left, c.x0)
			right = math.Max(right, c.x1)
		}
	}
	limit := opts.WideCellRatio * (right - left)

	var intervals []band
	for _, l := range block {
		for _, c := range l.cells {
			if limit > 0 && c.x1-c.x0 > limit {
				continue
			}
			intervals = append(intervals, band{c.x0, c.x1})
		}
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].x0 < intervals[j].x0 })

	var bands []band
	for _, iv := range intervals {
		n := len(bands)
		if n > 0 && iv.x0 <= bands[n-1].x1 {
			bands[n-1].x1 = math.Max(bands[n-1].x1, iv.x1)
			continue
		}
		bands = append(bands, iv)
	}
	return bands
}

func toGrid(block []line, bands []band) models.Grid {
	grid := make(models.Grid, 0, len(block))
	for _, l := range block {
		row := make([]string, len(bands))
		for _, c := range l.cells {
			i := bandFor(c, bands)
			if row[i] != "" {
				row[i] += " "
			}
			row[i] += c.text
		}
		grid = append(grid, row)
	}
	return grid
}

func bandFor(c cell, bands []band) int {
	mid := (c.x0 + c.x1) / 2
	best, bestDist := 0, math.Inf(1)
	for i, b := range bands {
		if mid >= b.x0 && mid <= b.x1 {
			return i
		}
		if d := math.Abs(b.center() - mid); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
