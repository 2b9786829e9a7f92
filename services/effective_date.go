package services

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rickb777/date"
)

// ResolvedDate is an effective date together with its canonical text form,
// e.g. "16 September 2023".
type ResolvedDate struct {
	Date date.Date
	Text string
}

// monthPrefixes maps English and Malay month abbreviations to months.
// A month word matches when it starts with one of the prefixes.
var monthPrefixes = []struct {
	prefix string
	month  time.Month
}{
	{"JAN", time.January},
	{"FEB", time.February},
	{"MAR", time.March},
	{"MAC", time.March},
	{"APR", time.April},
	{"MAY", time.May},
	{"MEI", time.May},
	{"JUN", time.June},
	{"JUL", time.July},
	{"AUG", time.August},
	{"OGOS", time.August},
	{"SEP", time.September},
	{"OCT", time.October},
	{"OKT", time.October},
	{"NOV", time.November},
	{"DEC", time.December},
	{"DIS", time.December},
}

var (
	ordinalSuffixRE = regexp.MustCompile(`(\d)(?:ST|ND|RD|TH)\b`)
	punctuationRE   = regexp.MustCompile(`[^A-Z0-9\s-]+`)
	whitespaceRE    = regexp.MustCompile(`\s+`)

	dayMonthYearRE = regexp.MustCompile(`(?:^|[^0-9])(\d{1,2})[\s-]*([A-Z]{3,})[\s-]*(\d{4})(?:[^0-9]|$)`)
	mulaiRE        = regexp.MustCompile(`MULAI[\s-]+(\d{1,2})[\s-]+([A-Z]{3,})[\s-]+(\d{4})`)
	isoRE          = regexp.MustCompile(`(?:^|[^0-9])(\d{4})[\s-]?(\d{2})[\s-]?(\d{2})(?:[^0-9]|$)`)
)

// normalizeDateText upper-cases s, drops ordinal suffixes and all punctuation
// except hyphens, and collapses whitespace.
func normalizeDateText(s string) string {
	s = strings.ToUpper(s)
	s = ordinalSuffixRE.ReplaceAllString(s, "$1")
	s = punctuationRE.ReplaceAllString(s, " ")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// lookupMonth maps a month word such as "SEPT" or "OGOS" to its month.
func lookupMonth(word string) (time.Month, bool) {
	for _, m := range monthPrefixes {
		if strings.HasPrefix(word, m.prefix) {
			return m.month, true
		}
	}
	return 0, false
}

// calendarDate builds a date and rejects overflowing values like 31 February.
func calendarDate(year int, month time.Month, day int) (date.Date, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return date.Date{}, false
	}
	d := date.New(year, month, day)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return date.Date{}, false
	}
	return d, true
}

// matchDayMonthYear tries every occurrence of a day/month-name/year pattern
// and returns the first that maps to a real date.
func matchDayMonthYear(re *regexp.Regexp, s string) (ResolvedDate, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		month, ok := lookupMonth(m[2])
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		d, ok := calendarDate(year, month, day)
		if !ok {
			continue
		}
		return ResolvedDate{Date: d, Text: m[1] + " " + month.String() + " " + m[3]}, true
	}
	return ResolvedDate{}, false
}

func matchISO(s string) (ResolvedDate, bool) {
	for _, m := range isoRE.FindAllStringSubmatch(s, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d, ok := calendarDate(year, time.Month(month), day)
		if !ok {
			continue
		}
		return ResolvedDate{Date: d, Text: d.String()}, true
	}
	return ResolvedDate{}, false
}

// ResolveEffectiveDate parses a free-text date phrase. Patterns are tried in
// order: day/month-name/year, "mulai" day/month-name/year, and numeric
// YYYY-MM-DD. An unparseable phrase is reported as unresolved, never as a
// default date.
func ResolveEffectiveDate(text string) (ResolvedDate, bool) {
	s := normalizeDateText(text)
	if s == "" {
		return ResolvedDate{}, false
	}
	if r, ok := matchDayMonthYear(dayMonthYearRE, s); ok {
		return r, true
	}
	if r, ok := matchDayMonthYear(mulaiRE, s); ok {
		return r, true
	}
	return matchISO(s)
}

// DateFromURL resolves a date embedded in the file name of a document link,
// e.g. ".../Jadual-Komuter-Utara-16-Sept-2023.pdf".
func DateFromURL(link string) (ResolvedDate, bool) {
	name := link
	if u, err := url.Parse(link); err == nil {
		name = u.Path
	}
	name = path.Base(name)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	return ResolveEffectiveDate(name)
}
