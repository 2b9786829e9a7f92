package services

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ktm-timetables/models"
)

var (
	ipohRE        = regexp.MustCompile(`\bIPOH\b`)
	padangBesarRE = regexp.MustCompile(`\bPADANG BESAR\b`)
)

// ClassifyNorthern assigns a northern corridor table to a segment by the
// destinations written in its train-number column. Tables without that
// column, or without a known destination, stay unclassified.
func ClassifyNorthern(t *models.Timetable) models.RouteBucket {
	values, ok := t.ColumnFold(models.TrainNumberColumn)
	if !ok {
		return models.BucketUnclassified
	}
	upper := make([]string, len(values))
	for i, v := range values {
		upper[i] = strings.ToUpper(v)
	}
	if anyMatch(ipohRE, upper) {
		return models.BucketIpoh
	}
	if anyMatch(padangBesarRE, upper) {
		return models.BucketPadangBesar
	}
	return models.BucketUnclassified
}

func anyMatch(re *regexp.Regexp, values []string) bool {
	for _, v := range values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// Namer gives every table of a document its persisted name.
type Namer struct {
	Logger *zap.Logger
}

// NewNamer creates a Namer.
func NewNamer(logger *zap.Logger) *Namer {
	return &Namer{Logger: logger}
}

// NameTables names the tables of one document. Single-corridor documents use
// "{key}_route_{ordinal}". Segmented documents are classified by content and
// named "{key}_{bucket}_{n}" with one counter per bucket; unclassified tables
// fall back to "{key}_route_{ordinal}" so nothing is dropped. Station names
// of segmented documents are upper-cased.
func (n *Namer) NameTables(sel Selection, tables []*models.Timetable) map[string]*models.Timetable {
	named := make(map[string]*models.Timetable, len(tables))
	counters := map[models.RouteBucket]int{}

	for _, t := range tables {
		name := positionalName(sel.ScheduleKey, t.Ordinal)
		if sel.Segmented {
			bucket := ClassifyNorthern(t)
			if bucket != models.BucketUnclassified {
				counters[bucket]++
				name = fmt.Sprintf("%s_%s_%d", sel.ScheduleKey, bucket, counters[bucket])
			} else {
				n.Logger.Warn("Table not matched to a segment, using positional name",
					zap.String("schedule_key", sel.ScheduleKey),
					zap.Int("table", t.Ordinal),
					zap.String("name", name))
			}
			t.UpperStations()
		}
		if _, dup := named[name]; dup {
			n.Logger.Error("Duplicate table name, keeping first", zap.String("name", name))
			continue
		}
		n.Logger.Info("Table named", zap.String("schedule_key", sel.ScheduleKey), zap.Int("table", t.Ordinal), zap.String("name", name))
		named[name] = t
	}
	return named
}

func positionalName(key string, ordinal int) string {
	return fmt.Sprintf("%s_route_%d", key, ordinal)
}
