// Package layout recognizes tables from the positions of text on PDF pages.
package layout

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"ktm-timetables/models"
	"ktm-timetables/providers"
)

// Recognizer implements providers.Recognizer on top of the PDF text layer.
type Recognizer struct {
	Options Options
	Logger  *zap.Logger
}

// NewRecognizer creates a layout Recognizer with default options.
func NewRecognizer(logger *zap.Logger) *Recognizer {
	return &Recognizer{Options: DefaultOptions(), Logger: logger}
}

// Name returns the name of the backend.
func (r *Recognizer) Name() string {
	return "layout"
}

// Tables detects tables page by page.
func (r *Recognizer) Tables(ctx context.Context, document []byte, pages string) (grids []models.Grid, err error) {
	// the PDF parser panics on some malformed documents
	defer func() {
		if rec := recover(); rec != nil {
			grids, err = nil, fmt.Errorf("read pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pageNums, err := providers.ParsePageRange(pages, reader.NumPage())
	if err != nil {
		return nil, err
	}

	for _, n := range pageNums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		texts := page.Content().Text
		frags := make([]Fragment, 0, len(texts))
		for _, t := range texts {
			frags = append(frags, Fragment{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
		}
		found := DetectTables(frags, r.Options)
		r.Logger.Debug("Page scanned", zap.Int("page", n), zap.Int("fragments", len(frags)), zap.Int("tables", len(found)))
		grids = append(grids, found...)
	}
	return grids, nil
}
