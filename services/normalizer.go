package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ligatureReplacer = strings.NewReplacer(
		"ﬁ", "fi",
		"ﬂ", "fl",
		"ﬀ", "ff",
		"ﬃ", "ffi",
		"ﬄ", "ffl",
		"ﬆ", "st",
	)
	cellSpaceRE = regexp.MustCompile("[\\s\u00a0\u2007\u202f]+")
)

// TextNormalizer cleans the raw cell strings produced by a table backend.
type TextNormalizer struct {
	// Compatibility folds full-width digits and similar forms (NFKC).
	Compatibility bool
}

// NewTextNormalizer returns a normalizer with compatibility folding enabled.
func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{Compatibility: true}
}

// Cell normalizes one cell: Unicode normalization, ligatures, and all runs of
// whitespace (including line breaks inside merged cells) collapsed to a
// single space.
func (tn *TextNormalizer) Cell(s string) string {
	if s == "" {
		return s
	}
	s = tn.normalizeUnicodeAndLigatures(s)
	s = cellSpaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Row normalizes every cell of a row into a new slice.
func (tn *TextNormalizer) Row(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = tn.Cell(c)
	}
	return out
}

func (tn *TextNormalizer) normalizeUnicodeAndLigatures(s string) string {
	s = ligatureReplacer.Replace(s)
	var f norm.Form = norm.NFC
	if tn.Compatibility {
		f = norm.NFKC
	}
	normalized, _, err := transform.String(f, s)
	if err != nil {
		return s
	}
	return normalized
}
