package models

import (
	"github.com/rickb777/date"
)

// ScheduleKind classifies a timetable document by the days it covers.
type ScheduleKind string

const (
	ScheduleWeekdays ScheduleKind = "WEEKDAYS"
	ScheduleWeekends ScheduleKind = "WEEKENDS"
	// ScheduleUnknown marks documents without a weekday/weekend split.
	ScheduleUnknown ScheduleKind = "NA"
)

// IsRanked reports whether the kind takes part in the weekday/weekend selection.
func (k ScheduleKind) IsRanked() bool {
	return k == ScheduleWeekdays || k == ScheduleWeekends
}

// Lower returns the kind as used in schedule keys, e.g. "weekdays".
func (k ScheduleKind) Lower() string {
	switch k {
	case ScheduleWeekdays:
		return "weekdays"
	case ScheduleWeekends:
		return "weekends"
	default:
		return "na"
	}
}

// CandidateDocument is one timetable link found on the listing page.
// It is never mutated after discovery.
type CandidateDocument struct {
	Title         string       `json:"title"`
	DocumentURL   string       `json:"pdf_link"`
	ScheduleKind  ScheduleKind `json:"schedule"`
	EffectiveText string       `json:"effective,omitempty"`
	EffectiveDate *date.Date   `json:"effective_date,omitempty"`
}

// HasTitle reports whether a bold title was found for the link.
func (c CandidateDocument) HasTitle() bool {
	return c.Title != ""
}

// Resolved reports whether the effective date could be parsed.
func (c CandidateDocument) Resolved() bool {
	return c.EffectiveDate != nil
}

// EffectiveISO returns the effective date as YYYY-MM-DD, or "" when unresolved.
func (c CandidateDocument) EffectiveISO() string {
	if c.EffectiveDate == nil {
		return ""
	}
	return c.EffectiveDate.String()
}

// ScheduleGroup identifies a (title, schedule kind) pair.
type ScheduleGroup struct {
	Title        string
	ScheduleKind ScheduleKind
}

// ScheduleSelection holds the most recent document per (title, schedule kind),
// in order of first appearance. Groups without candidates are absent.
type ScheduleSelection struct {
	order   []ScheduleGroup
	entries map[ScheduleGroup]CandidateDocument
}

// NewScheduleSelection creates an empty selection.
func NewScheduleSelection() *ScheduleSelection {
	return &ScheduleSelection{entries: make(map[ScheduleGroup]CandidateDocument)}
}

// Offer keeps doc if its group is new or doc is strictly more recent than the
// current entry. Ties keep the document seen first.
func (s *ScheduleSelection) Offer(doc CandidateDocument) {
	if doc.EffectiveDate == nil {
		return
	}
	key := ScheduleGroup{Title: doc.Title, ScheduleKind: doc.ScheduleKind}
	current, ok := s.entries[key]
	if !ok {
		s.order = append(s.order, key)
		s.entries[key] = doc
		return
	}
	if doc.EffectiveDate.After(*current.EffectiveDate) {
		s.entries[key] = doc
	}
}

// Get returns the selected document of a group.
func (s *ScheduleSelection) Get(title string, kind ScheduleKind) (CandidateDocument, bool) {
	doc, ok := s.entries[ScheduleGroup{Title: title, ScheduleKind: kind}]
	return doc, ok
}

// Len returns the number of groups.
func (s *ScheduleSelection) Len() int {
	return len(s.order)
}

// Documents returns the selected documents in first-seen group order.
func (s *ScheduleSelection) Documents() []CandidateDocument {
	docs := make([]CandidateDocument, 0, len(s.order))
	for _, key := range s.order {
		docs = append(docs, s.entries[key])
	}
	return docs
}
