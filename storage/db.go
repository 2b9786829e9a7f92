package storage

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"ktm-timetables/models"
)

// OpenDB connects to PostgreSQL with GORM's own logging silenced.
func OpenDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// RunStore keeps the candidate inventory and the sync run history in the
// database alongside the parquet files.
type RunStore struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewRunStore creates a RunStore.
func NewRunStore(db *gorm.DB, logger *zap.Logger) *RunStore {
	return &RunStore{DB: db, Logger: logger}
}

// Migrate creates or updates the tables.
func (s *RunStore) Migrate() error {
	return s.DB.AutoMigrate(&models.InventoryRecord{}, &models.SyncRun{})
}

// SaveInventory replaces the stored inventory with the candidates of a run.
func (s *RunStore) SaveInventory(ctx context.Context, runID string, docs []models.CandidateDocument) error {
	records := make([]models.InventoryRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, models.NewInventoryRecord(runID, d))
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.InventoryRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
}

// SaveRun inserts a run or updates it when the id exists.
func (s *RunStore) SaveRun(ctx context.Context, run *models.SyncRun) error {
	return upsertRun(s.DB.WithContext(ctx), run).Error
}

func upsertRun(tx *gorm.DB, run *models.SyncRun) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(run)
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	err := listRuns(s.DB.WithContext(ctx), limit).Find(&runs).Error
	return runs, err
}

func listRuns(tx *gorm.DB, limit int) *gorm.DB {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return tx.Model(&models.SyncRun{}).Order("started_at DESC").Limit(limit)
}
