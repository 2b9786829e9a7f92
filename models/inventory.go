package models

import (
	"time"
)

// InventoryRecord is the database row of a discovered timetable document.
type InventoryRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	RunID         string     `json:"run_id" gorm:"index;size:36"`
	Title         string     `json:"title"`
	PDFLink       string     `json:"pdf_link" gorm:"not null"`
	Schedule      string     `json:"schedule" gorm:"size:16"`
	Effective     string     `json:"effective,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty" gorm:"type:date;index"`
}

// TableName keeps the name of the persisted inventory artifact.
func (InventoryRecord) TableName() string {
	return "timetables_info"
}

// NewInventoryRecord converts a candidate into its database row.
func NewInventoryRecord(runID string, doc CandidateDocument) InventoryRecord {
	rec := InventoryRecord{
		RunID:     runID,
		Title:     doc.Title,
		PDFLink:   doc.DocumentURL,
		Schedule:  string(doc.ScheduleKind),
		Effective: doc.EffectiveText,
	}
	if doc.EffectiveDate != nil {
		t := doc.EffectiveDate.UTC()
		rec.EffectiveDate = &t
	}
	return rec
}

// SyncRun records the outcome of one pipeline run.
type SyncRun struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Candidates int    `json:"candidates"`
	Resolved   int    `json:"resolved"`
	Selected   int    `json:"selected"`
	Tables     int    `json:"tables"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty" gorm:"type:text"`

	// Selections maps each schedule key to the chosen document URL.
	Selections map[string]string `json:"selections,omitempty" gorm:"-"`
	TableNames []string          `json:"table_names,omitempty" gorm:"-"`
}

// TableName returns the explicit table name for GORM.
func (SyncRun) TableName() string {
	return "sync_runs"
}
