// Package scheduler loads the configured NHANES datasets at startup, reloads
// them on a daily schedule and warns when the data goes stale.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/metrics"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
	"github.com/giygas/nhanes-api/validation"
	"github.com/go-co-op/gocron"
)

var _ interfaces.Scheduler = (*Scheduler)(nil)

// ErrNothingLoaded is returned when no dataset and no drug table could be loaded
var ErrNothingLoaded = errors.New("no NHANES data could be loaded")

const (
	staleAfter      = 25 * time.Hour
	monitorInterval = time.Hour
)

// Options selects what is loaded and when
type Options struct {
	Datasets    []string
	Years       nhanes.YearRange
	UpdateTimes string // gocron At() times, "HH:MM" entries separated by ';'
}

// Scheduler handles data updates and staleness monitoring
type Scheduler struct {
	dataStore interfaces.DataStore
	loader    interfaces.Loader
	validator interfaces.DataValidator
	opts      Options
	scheduler *gocron.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(dataStore interfaces.DataStore, loader interfaces.Loader, opts Options) *Scheduler {
	if opts.UpdateTimes == "" {
		opts.UpdateTimes = "03:00"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dataStore: dataStore,
		loader:    loader,
		validator: validation.NewDataValidator(),
		opts:      opts,
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start performs the initial load, then schedules the daily reloads
func (s *Scheduler) Start() error {
	if err := s.updateData(s.ctx); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	_, err := s.scheduler.Every(1).Days().At(s.opts.UpdateTimes).Do(func() {
		if err := s.updateData(s.ctx); err != nil {
			logging.Error("Failed to update data", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule updates", "times", s.opts.UpdateTimes, "error", err)
		return fmt.Errorf("failed to schedule updates: %w", err)
	}

	s.scheduler.StartAsync()
	go s.monitorStaleness(monitorInterval)

	return nil
}

// Stop cancels any running load and stops the scheduled jobs
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// updateData loads every dataset and the drug table and swaps them into the
// store. Datasets or drugs that fail this time keep their previous value.
// It fails only when nothing at all is available.
func (s *Scheduler) updateData(ctx context.Context) error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info(fmt.Sprintf("Starting NHANES update at: %s", time.Now().Format(time.RFC3339)),
		"datasets", s.opts.Datasets, "start", s.opts.Years.Start, "end", s.opts.Years.End)
	start := time.Now()

	results := s.loader.Load(ctx, s.opts.Datasets, s.opts.Years)
	for _, name := range results.Datasets() {
		res := results[name]
		if !res.OK() {
			continue
		}
		if err := s.validator.ValidateTable(res.Table); err != nil {
			logging.Warn("Discarding invalid dataset", "dataset", name, "error", err)
			res.Err = fmt.Errorf("dataset %s: %w", name, err)
			res.Table = nil
		}
	}

	drugs, drugsErr := s.loader.LoadDrugs(ctx, "")
	if drugsErr != nil {
		logging.Error("Failed to load drug lookup table", "error", drugsErr)
	}

	results, drugs = s.keepPrevious(results, drugs)

	if len(results.Tables()) == 0 && drugs == nil {
		if err := errors.Join(results.Err(), drugsErr); err != nil {
			return fmt.Errorf("%w: %w", ErrNothingLoaded, err)
		}
		return ErrNothingLoaded
	}

	report := s.validator.ReportDataQuality(results, drugs)
	logReport(report)

	for name, res := range results {
		rows := 0
		if res.OK() {
			rows = res.Table.Rows()
		}
		metrics.DatasetRows.WithLabelValues(name).Set(float64(rows))
	}

	s.dataStore.UpdateData(results, drugs, report)

	logging.Info("NHANES update completed",
		"duration", time.Since(start).String(),
		"datasets", len(report.LoadedDatasets),
		"failed", len(report.FailedDatasets),
		"rows", report.TotalRows,
	)
	return nil
}

// keepPrevious substitutes the currently served value for every dataset that
// failed to load, and for the drug table when it is nil.
func (s *Scheduler) keepPrevious(results nhanes.Results, drugs *table.Table) (nhanes.Results, *table.Table) {
	previous := s.dataStore.GetResults()
	for name, res := range results {
		if res.OK() {
			continue
		}
		if prev, ok := previous[name]; ok && prev.OK() {
			logging.Warn("Keeping previously loaded dataset", "dataset", name, "error", res.Err)
			results[name] = prev
		}
	}

	if drugs == nil {
		drugs = s.dataStore.GetDrugs()
	}
	return results, drugs
}

func logReport(report *interfaces.DataQualityReport) {
	if len(report.FailedDatasets) > 0 {
		logging.Warn("Datasets without data",
			"count", len(report.FailedDatasets),
			"datasets", report.FailedDatasets,
		)
	}
	if report.FailedFiles > 0 {
		logging.Warn("NHANES files could not be read", "count", report.FailedFiles)
	}
	for name, cols := range report.EmptyColumns {
		logging.Debug("Columns without any value", "dataset", name, "columns", cols)
	}
	if !report.DrugsLoaded {
		logging.Warn("Drug lookup table is not available")
	}
}

// monitorStaleness warns once per interval while the data is older than staleAfter
func (s *Scheduler) monitorStaleness(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if age := time.Since(s.dataStore.GetLastUpdated()); age > staleAfter {
				logging.Warn("Data hasn't been updated in over 25 hours", "age", age.Round(time.Minute).String())
			}
		}
	}
}
