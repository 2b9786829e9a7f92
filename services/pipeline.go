package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ktm-timetables/config"
	"ktm-timetables/models"
	"ktm-timetables/providers"
)

var (
	// ErrNoCandidates is the run-level failure: discovery produced nothing to work on.
	ErrNoCandidates = errors.New("no candidate documents discovered")
	// ErrRunInProgress is returned when a sync is requested while one is running.
	ErrRunInProgress = errors.New("sync run already in progress")

	pdfMagic = []byte("%PDF")
)

// TableStore persists the output of a run.
type TableStore interface {
	WriteTables(tables map[string]*models.Timetable) ([]string, error)
	WriteInventory(docs []models.CandidateDocument) (string, error)
}

// RunRecorder stores the inventory and the run history in a database.
type RunRecorder interface {
	SaveInventory(ctx context.Context, runID string, docs []models.CandidateDocument) error
	SaveRun(ctx context.Context, run *models.SyncRun) error
}

// FileMirror copies written files to remote storage.
type FileMirror interface {
	Upload(ctx context.Context, files []string) (int, error)
}

// SyncService runs the batch pipeline: discovery, selection, per-document
// download and extraction, naming and persistence. Documents are processed
// one at a time and only one run may be active.
type SyncService struct {
	Discoverer *Discoverer
	Selector   *Selector
	Extractor  *Extractor
	Namer      *Namer
	Recognizer providers.Recognizer
	Store      TableStore
	Client     *http.Client
	PageRange  string
	Logger     *zap.Logger

	// Optional collaborators; nil disables them.
	Runs   RunRecorder
	Mirror FileMirror

	mu sync.Mutex
}

// NewSyncService wires the pipeline stages from the configuration.
func NewSyncService(cfg *config.Config, client *http.Client, recognizer providers.Recognizer, store TableStore, logger *zap.Logger) *SyncService {
	return &SyncService{
		Discoverer: NewDiscoverer(cfg.ListingURL, client, logger),
		Selector:   NewSelector(cfg.Titles(), cfg.NorthernKeyword, logger),
		Extractor:  NewExtractor(logger),
		Namer:      NewNamer(logger),
		Recognizer: recognizer,
		Store:      store,
		Client:     client,
		PageRange:  cfg.PageRange,
		Logger:     logger,
	}
}

// Run executes one sync. Failures of single documents or tables are logged
// and skipped. The returned run report is never nil; the error is non-nil
// when nothing could be discovered or the tables could not be written.
func (s *SyncService) Run(ctx context.Context) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Selections: map[string]string{},
	}
	if !s.mu.TryLock() {
		return run, ErrRunInProgress
	}
	defer s.mu.Unlock()

	log := s.Logger.With(zap.String("run_id", run.ID))
	log.Info("Starting timetable sync", zap.String("backend", s.Recognizer.Name()))

	err := s.run(ctx, run, log)
	s.finish(ctx, run, err, log)
	return run, err
}

func (s *SyncService) run(ctx context.Context, run *models.SyncRun, log *zap.Logger) error {
	docs, err := s.Discoverer.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCandidates, err)
	}
	if len(docs) == 0 {
		return ErrNoCandidates
	}
	run.Candidates = len(docs)
	for _, d := range docs {
		if d.Resolved() {
			run.Resolved++
		} else {
			log.Warn("Effective date unresolved", zap.String("title", d.Title), zap.String("url", d.DocumentURL))
		}
	}
	candidatesGauge.Set(float64(run.Candidates))

	var written []string
	if p, err := s.Store.WriteInventory(docs); err != nil {
		log.Warn("Writing inventory failed", zap.Error(err))
	} else {
		written = append(written, p)
	}
	if s.Runs != nil {
		if err := s.Runs.SaveInventory(ctx, run.ID, docs); err != nil {
			log.Warn("Saving inventory to database failed", zap.Error(err))
		}
	}

	selections := s.Selector.Select(docs)
	run.Selected = len(selections)

	tables := make(map[string]*models.Timetable)
	for _, sel := range selections {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.Selections[sel.ScheduleKey] = sel.Document.DocumentURL
		named, skipped := s.process(ctx, sel)
		run.Skipped += skipped
		for name, t := range named {
			if _, dup := tables[name]; dup {
				log.Warn("Duplicate table name, keeping first", zap.String("table", name))
				continue
			}
			tables[name] = t
		}
	}

	paths, err := s.Store.WriteTables(tables)
	run.Tables = len(paths)
	tablesWrittenCounter.Add(float64(len(paths)))
	written = append(written, paths...)
	for name := range tables {
		run.TableNames = append(run.TableNames, name)
	}
	sort.Strings(run.TableNames)

	if s.Mirror != nil && len(written) > 0 {
		if n, err := s.Mirror.Upload(ctx, written); err != nil {
			log.Warn("Mirroring to S3 incomplete", zap.Int("uploaded", n), zap.Int("files", len(written)), zap.Error(err))
		}
	}
	if err != nil {
		return fmt.Errorf("persist tables: %w", err)
	}
	return nil
}

// process downloads one selected document and turns it into named tables.
// It returns the number of recognized tables that could not be extracted.
func (s *SyncService) process(ctx context.Context, sel Selection) (map[string]*models.Timetable, int) {
	log := s.Logger.With(zap.String("schedule_key", sel.ScheduleKey), zap.String("url", sel.Document.DocumentURL))

	data, err := s.download(ctx, sel.Document.DocumentURL)
	if err != nil {
		log.Warn("Download failed", zap.Error(err))
		documentFailuresCounter.Inc()
		return nil, 0
	}
	grids, err := s.Recognizer.Tables(ctx, data, s.PageRange)
	if err != nil {
		log.Warn("Table recognition failed", zap.String("backend", s.Recognizer.Name()), zap.Error(err))
		documentFailuresCounter.Inc()
		return nil, 0
	}

	extracted := s.Extractor.ExtractAll(grids)
	skipped := len(grids) - len(extracted)
	tablesSkippedCounter.Add(float64(skipped))
	if len(extracted) == 0 {
		log.Warn("No tables extracted", zap.Int("recognized", len(grids)))
		documentFailuresCounter.Inc()
		return nil, skipped
	}

	named := s.Namer.NameTables(sel, extracted)
	log.Info("Document processed", zap.Int("recognized", len(grids)), zap.Int("tables", len(named)))
	return named, skipped
}

// download fetches a document and checks that it is a PDF.
func (s *SyncService) download(ctx context.Context, link string) ([]byte, error) {
	data, err := fetch(ctx, s.Client, link, maxDocumentBytes)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return nil, fmt.Errorf("%s is not a PDF document", link)
	}
	return data, nil
}

func (s *SyncService) finish(ctx context.Context, run *models.SyncRun, err error, log *zap.Logger) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	syncDuration.Observe(finished.Sub(run.StartedAt).Seconds())

	outcome := "success"
	switch {
	case errors.Is(err, ErrNoCandidates):
		outcome = "no_candidates"
	case err != nil:
		outcome = "failed"
	}
	if err != nil {
		run.Error = err.Error()
		log.Error("Timetable sync failed", zap.Error(err))
	} else {
		lastSuccessGauge.SetToCurrentTime()
		log.Info("Timetable sync finished",
			zap.Int("candidates", run.Candidates),
			zap.Int("selected", run.Selected),
			zap.Int("tables", run.Tables),
			zap.Int("skipped", run.Skipped),
			zap.Duration("duration", finished.Sub(run.StartedAt)))
	}
	syncRunsCounter.WithLabelValues(outcome).Inc()

	if s.Runs != nil {
		// the run is recorded even when the caller's context is done
		if err := s.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("Saving run to database failed", zap.Error(err))
		}
	}
}
