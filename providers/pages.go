package providers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPageRange is returned for page specifications that cannot be parsed.
var ErrInvalidPageRange = errors.New("invalid page range")

// ParsePageRange expands a page specification such as "1-end", "all" or
// "1,3-4" into 1-based page numbers, ascending and without duplicates.
// Pages beyond numPages are ignored.
func ParsePageRange(rng string, numPages int) ([]int, error) {
	rng = strings.ToLower(strings.TrimSpace(rng))
	if rng == "" || rng == "all" {
		rng = "1-end"
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(rng, ",") {
		part = strings.TrimSpace(part)
		from, to, isRange := strings.Cut(part, "-")
		first, err := pageNumber(from, numPages)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = pageNumber(to, numPages); err != nil {
				return nil, err
			}
		}
		if last < first {
			if strings.TrimSpace(to) == "end" {
				continue
			}
			return nil, fmt.Errorf("%w: %q", ErrInvalidPageRange, part)
		}
		for p := first; p <= last && p <= numPages; p++ {
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := 1; p <= numPages; p++ {
		if seen[p] {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

func pageNumber(s string, numPages int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "end" {
		return numPages, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageRange, s)
	}
	return n, nil
}
