package services

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ktm-timetables/models"
)

// ExpectedSelections is the number of corridor selections a complete run
// produces: two Klang Valley corridors times two schedule kinds.
const ExpectedSelections = 4

// NorthernScheduleKey is the schedule key of the northern corridor document.
const NorthernScheduleKey = "utara"

// Corridor is a Klang Valley line served from its own documents.
type Corridor struct {
	Key     string // schedule key prefix, e.g. "batu_caves"
	Keyword string // title substring identifying the corridor
}

// KlangValleyCorridors are the single-corridor lines the system serves.
var KlangValleyCorridors = []Corridor{
	{Key: "batu_caves", Keyword: "BATU CAVES"},
	{Key: "klang", Keyword: "PELABUHAN KLANG"},
}

var rankedKinds = []models.ScheduleKind{models.ScheduleWeekdays, models.ScheduleWeekends}

// Selection is a document chosen for extraction under a schedule key.
type Selection struct {
	ScheduleKey string
	Document    models.CandidateDocument
	// Segmented documents bundle several lines and are classified by content.
	Segmented bool
}

// Selector narrows the candidate inventory to the documents to extract.
type Selector struct {
	Titles          []string
	Corridors       []Corridor
	NorthernKeyword string
	Logger          *zap.Logger
}

// NewSelector creates a Selector for the given allow-listed titles.
func NewSelector(titles []string, northernKeyword string, logger *zap.Logger) *Selector {
	return &Selector{
		Titles:          titles,
		Corridors:       KlangValleyCorridors,
		NorthernKeyword: northernKeyword,
		Logger:          logger,
	}
}

// Select returns the Klang Valley selections followed by the northern one.
// Missing combinations are logged and skipped.
func (s *Selector) Select(docs []models.CandidateDocument) []Selection {
	allowed := FilterAllowed(docs, s.Titles)
	latest := LatestPerGroup(allowed)
	selections := SelectSchedules(latest, s.Corridors)

	s.Logger.Info("Klang Valley timetables selected",
		zap.Int("allowed", len(allowed)),
		zap.Int("groups", latest.Len()),
		zap.Int("selected", len(selections)))
	if len(selections) < ExpectedSelections {
		s.Logger.Warn("Incomplete timetable selection",
			zap.Int("selected", len(selections)),
			zap.Int("expected", ExpectedSelections))
	}

	if s.NorthernKeyword != "" {
		if doc, ok := SelectNorthern(docs, s.NorthernKeyword); ok {
			selections = append(selections, Selection{ScheduleKey: NorthernScheduleKey, Document: doc, Segmented: true})
		} else {
			s.Logger.Warn("No valid timetable found for northern corridor", zap.String("keyword", s.NorthernKeyword))
		}
	}
	return selections
}

// FilterAllowed keeps resolved weekday/weekend candidates whose title contains
// one of the allow-listed substrings, ignoring case.
func FilterAllowed(docs []models.CandidateDocument, titles []string) []models.CandidateDocument {
	var out []models.CandidateDocument
	for _, doc := range docs {
		if !doc.Resolved() || !doc.ScheduleKind.IsRanked() {
			continue
		}
		if containsAnyFold(doc.Title, titles) {
			out = append(out, doc)
		}
	}
	return out
}

// LatestPerGroup keeps the most recent document per (title, schedule kind).
// Ties keep the document seen first.
func LatestPerGroup(docs []models.CandidateDocument) *models.ScheduleSelection {
	sel := models.NewScheduleSelection()
	for _, doc := range docs {
		sel.Offer(doc)
	}
	return sel
}

// SelectSchedules picks, per corridor and schedule kind, the most recent of
// the grouped documents. Keys are "{corridor}_{kind}", e.g. "klang_weekends".
func SelectSchedules(latest *models.ScheduleSelection, corridors []Corridor) []Selection {
	docs := latest.Documents()
	var out []Selection
	for _, c := range corridors {
		for _, kind := range rankedKinds {
			var best *models.CandidateDocument
			for i := range docs {
				doc := &docs[i]
				if doc.ScheduleKind != kind || !containsAnyFold(doc.Title, []string{c.Keyword}) {
					continue
				}
				if best == nil || doc.EffectiveDate.After(*best.EffectiveDate) {
					best = doc
				}
			}
			if best != nil {
				out = append(out, Selection{ScheduleKey: c.Key + "_" + kind.Lower(), Document: *best})
			}
		}
	}
	return out
}

// SelectNorthern returns the most recent resolved document whose title
// contains keyword as a whole word, regardless of schedule kind.
func SelectNorthern(docs []models.CandidateDocument, keyword string) (models.CandidateDocument, bool) {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	var best *models.CandidateDocument
	for i := range docs {
		doc := &docs[i]
		if !doc.Resolved() || !re.MatchString(doc.Title) {
			continue
		}
		if best == nil || doc.EffectiveDate.After(*best.EffectiveDate) {
			best = doc
		}
	}
	if best == nil {
		return models.CandidateDocument{}, false
	}
	return *best, true
}

func containsAnyFold(s string, subs []string) bool {
	upper := strings.ToUpper(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(upper, strings.ToUpper(sub)) {
			return true
		}
	}
	return false
}
