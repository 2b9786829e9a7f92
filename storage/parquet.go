package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rickb777/date"
	"go.uber.org/zap"

	"ktm-timetables/models"
)

const (
	// Extension of every persisted file.
	Extension = ".parquet"
	// InventoryName is the fixed name of the candidate inventory file.
	InventoryName = "timetables_info"

	columnsKey = "columns"
)

// ErrTableNotFound is returned when no persisted file exists for a name.
var ErrTableNotFound = errors.New("table not found")

// ParquetStore keeps timetables and the candidate inventory as parquet files
// in a single directory. It is the only writer of that directory.
type ParquetStore struct {
	Dir    string
	Logger *zap.Logger
}

// NewParquetStore creates a store rooted at dir.
func NewParquetStore(dir string, logger *zap.Logger) *ParquetStore {
	return &ParquetStore{Dir: dir, Logger: logger}
}

// Path returns the file a name is persisted to.
func (s *ParquetStore) Path(name string) string {
	return filepath.Join(s.Dir, name+Extension)
}

// WriteTables writes every table under its name and returns the written
// paths in name order. Existing files of the same name are replaced.
func (s *ParquetStore) WriteTables(tables map[string]*models.Timetable) ([]string, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		p, err := s.WriteTable(name, tables[name])
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteTable writes one table with a string column per header.
func (s *ParquetStore) WriteTable(name string, t *models.Timetable) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	headers := t.Headers()
	group := make(parquet.Group, len(headers))
	for _, h := range headers {
		group[h] = parquet.String()
	}
	schema := parquet.NewSchema(name, group)

	// leaf columns are stored sorted by name; map each header to its leaf
	index := make([]int, len(headers))
	for i, h := range headers {
		leaf, ok := schema.Lookup(h)
		if !ok {
			return "", fmt.Errorf("column %q missing from schema", h)
		}
		index[i] = leaf.ColumnIndex
	}
	order, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}

	rows := make([]parquet.Row, 0, t.NumRows())
	for r, station := range t.Stations {
		row := make(parquet.Row, len(headers))
		row[index[0]] = parquet.ValueOf(station).Level(0, 0, index[0])
		for c, v := range t.Cells[r] {
			col := index[c+1]
			row[col] = parquet.ValueOf(v).Level(0, 0, col)
		}
		rows = append(rows, row)
	}

	path := s.Path(name)
	err = s.writeAtomic(path, func(w io.Writer) error {
		pw := parquet.NewWriter(w, schema, parquet.KeyValueMetadata(columnsKey, string(order)))
		if _, err := pw.WriteRows(rows); err != nil {
			return err
		}
		return pw.Close()
	})
	if err != nil {
		return "", fmt.Errorf("write table %s: %w", name, err)
	}
	s.Logger.Debug("Table written", zap.String("table", name), zap.Int("rows", len(rows)), zap.String("path", path))
	return path, nil
}

// ReadTable loads a persisted table by name.
func (s *ParquetStore) ReadTable(name string) (*models.Timetable, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	var headers []string
	meta, ok := pf.Lookup(columnsKey)
	if !ok {
		return nil, fmt.Errorf("%s: missing column order", name)
	}
	if err := json.Unmarshal([]byte(meta), &headers); err != nil {
		return nil, fmt.Errorf("%s: column order: %w", name, err)
	}
	if len(headers) == 0 || headers[0] != models.StationColumn {
		return nil, fmt.Errorf("%s: first column is not %s", name, models.StationColumn)
	}
	position := make(map[int]int, len(headers))
	for i, h := range headers {
		leaf, ok := pf.Schema().Lookup(h)
		if !ok {
			return nil, fmt.Errorf("%s: column %q missing", name, h)
		}
		position[leaf.ColumnIndex] = i
	}

	var stations []string
	var cells [][]string
	err = readRows(pf, func(row parquet.Row) {
		values := make([]string, len(headers))
		for _, v := range row {
			if i, ok := position[v.Column()]; ok && !v.IsNull() {
				values[i] = string(v.ByteArray())
			}
		}
		stations = append(stations, values[0])
		cells = append(cells, values[1:])
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if cells == nil {
		cells = [][]string{}
	}
	return models.NewTimetable(headers[1:], stations, cells)
}

func readRows(pf *parquet.File, fn func(parquet.Row)) error {
	buf := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				fn(row)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

// inventoryRow is the on-disk layout of the candidate inventory.
type inventoryRow struct {
	Title         string `parquet:"title"`
	PDFLink       string `parquet:"pdf_link"`
	Schedule      string `parquet:"schedule"`
	Effective     string `parquet:"effective,optional"`
	EffectiveDate string `parquet:"effective_date,optional"`
}

// WriteInventory persists all candidates, resolved or not, in discovery order.
func (s *ParquetStore) WriteInventory(docs []models.CandidateDocument) (string, error) {
	rows := make([]inventoryRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, inventoryRow{
			Title:         d.Title,
			PDFLink:       d.DocumentURL,
			Schedule:      string(d.ScheduleKind),
			Effective:     d.EffectiveText,
			EffectiveDate: d.EffectiveISO(),
		})
	}
	path := s.Path(InventoryName)
	err := s.writeAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, rows)
	})
	if err != nil {
		return "", fmt.Errorf("write inventory: %w", err)
	}
	s.Logger.Debug("Inventory written", zap.Int("candidates", len(rows)), zap.String("path", path))
	return path, nil
}

// ReadInventory loads the candidate inventory of the last run.
func (s *ParquetStore) ReadInventory() ([]models.CandidateDocument, error) {
	rows, err := parquet.ReadFile[inventoryRow](s.Path(InventoryName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, InventoryName)
	}
	if err != nil {
		return nil, err
	}
	docs := make([]models.CandidateDocument, 0, len(rows))
	for _, r := range rows {
		doc := models.CandidateDocument{
			Title:         r.Title,
			DocumentURL:   r.PDFLink,
			ScheduleKind:  models.ScheduleKind(r.Schedule),
			EffectiveText: r.Effective,
		}
		if r.EffectiveDate != "" {
			t, err := time.Parse(time.DateOnly, r.EffectiveDate)
			if err != nil {
				return nil, fmt.Errorf("inventory date %q: %w", r.EffectiveDate, err)
			}
			d := date.NewAt(t)
			doc.EffectiveDate = &d
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// List returns the names of all persisted tables, sorted. The inventory is
// not included.
func (s *ParquetStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), Extension)
		if e.IsDir() || !ok || name == InventoryName || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// writeAtomic writes into a temporary file next to path and renames it over
// path once fn succeeded, creating the directory if absent.
func (s *ParquetStore) writeAtomic(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, ".tmp-*"+Extension)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
