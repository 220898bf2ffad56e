package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

// mockSchedulerDataStore records what the scheduler stores
type mockSchedulerDataStore struct {
	mu          sync.Mutex
	results     nhanes.Results
	drugs       *table.Table
	report      *interfaces.DataQualityReport
	lastUpdated time.Time
	updating    bool
	updateCount int
}

func (m *mockSchedulerDataStore) GetResults() nhanes.Results {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		return nhanes.Results{}
	}
	return m.results
}

func (m *mockSchedulerDataStore) GetDataset(name string) (*nhanes.Result, bool) {
	res, ok := m.GetResults()[name]
	return res, ok
}

func (m *mockSchedulerDataStore) GetDrugs() *table.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drugs
}

func (m *mockSchedulerDataStore) GetReport() *interfaces.DataQualityReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

func (m *mockSchedulerDataStore) GetLastUpdated() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdated
}

func (m *mockSchedulerDataStore) IsUpdating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updating
}

func (m *mockSchedulerDataStore) GetServerStartTime() time.Time {
	return time.Time{}
}

func (m *mockSchedulerDataStore) UpdateData(results nhanes.Results, drugs *table.Table, report *interfaces.DataQualityReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	m.drugs = drugs
	m.report = report
	m.lastUpdated = time.Now()
	m.updateCount++
}

func (m *mockSchedulerDataStore) BeginUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updating {
		return false
	}
	m.updating = true
	return true
}

func (m *mockSchedulerDataStore) EndUpdate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updating = false
}

// mockLoader serves canned tables; failing datasets produce no table
type mockLoader struct {
	rows        map[string]int
	failing     map[string]bool
	drugsFail   bool
	loadCount   int
	drugsCount  int
	lastYears   nhanes.YearRange
	lastDataset []string
}

func (m *mockLoader) Load(ctx context.Context, datasets []string, years nhanes.YearRange) nhanes.Results {
	m.loadCount++
	m.lastYears = years
	m.lastDataset = datasets

	results := make(nhanes.Results)
	for _, name := range datasets {
		if m.failing[name] {
			results[name] = &nhanes.Result{
				Dataset:  name,
				Failures: []*nhanes.FetchError{{Dataset: name, Year: years.Start, Err: errors.New("404")}},
				Err:      table.ErrNoTables,
			}
			continue
		}
		results[name] = &nhanes.Result{Dataset: name, Table: numericTable(m.rows[name]), Years: []int{years.Start}}
	}
	return results
}

func (m *mockLoader) LoadDrugs(ctx context.Context, location string) (*table.Table, error) {
	m.drugsCount++
	if m.drugsFail {
		return nil, errors.New("drugs unavailable")
	}
	return numericTable(3), nil
}

func numericTable(rows int) *table.Table {
	tbl := table.New()
	_ = tbl.AddColumn(table.NewNumeric("SEQN", make([]float64, rows), nil))
	return tbl
}

func testOptions(datasets ...string) Options {
	return Options{
		Datasets:    datasets,
		Years:       nhanes.YearRange{Start: 1999, End: 2003},
		UpdateTimes: "03:00",
	}
}

func TestScheduler_SuccessfulUpdate(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 10, "BPX": 5}}

	scheduler := NewScheduler(store, loader, testOptions("DEMO", "BPX"))
	if err := scheduler.Start(); err != nil {
		t.Fatalf("Unexpected error during start: %v", err)
	}
	defer scheduler.Stop()

	if store.updateCount != 1 {
		t.Errorf("Expected 1 update, got %d", store.updateCount)
	}
	if loader.loadCount != 1 || loader.drugsCount != 1 {
		t.Errorf("Expected one Load and one LoadDrugs, got %d and %d", loader.loadCount, loader.drugsCount)
	}
	if loader.lastYears != (nhanes.YearRange{Start: 1999, End: 2003}) {
		t.Errorf("Unexpected year range %v", loader.lastYears)
	}

	results := store.GetResults()
	if len(results.Tables()) != 2 {
		t.Errorf("Expected 2 loaded datasets, got %d", len(results.Tables()))
	}
	if store.GetDrugs() == nil {
		t.Error("Expected drugs table to be stored")
	}
	report := store.GetReport()
	if report == nil || report.TotalRows != 15 || !report.DrugsLoaded {
		t.Errorf("Unexpected report %+v", report)
	}
}

func TestScheduler_EverythingFails(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{failing: map[string]bool{"DEMO": true}, drugsFail: true}

	scheduler := NewScheduler(store, loader, testOptions("DEMO"))
	err := scheduler.Start()
	if !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("Expected ErrNothingLoaded, got %v", err)
	}
	if !errors.Is(err, table.ErrNoTables) {
		t.Errorf("Expected error to wrap table.ErrNoTables, got %v", err)
	}
	if store.updateCount != 0 {
		t.Errorf("Expected 0 updates, got %d", store.updateCount)
	}
	if store.IsUpdating() {
		t.Error("Update flag should be released after a failure")
	}
}

func TestScheduler_PartialFailureIsStored(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 4}, failing: map[string]bool{"BPX": true}, drugsFail: true}

	scheduler := NewScheduler(store, loader, testOptions("DEMO", "BPX"))
	if err := scheduler.updateData(context.Background()); err != nil {
		t.Fatalf("Partial failure should not be an error: %v", err)
	}

	results := store.GetResults()
	if !results["DEMO"].OK() {
		t.Error("Expected DEMO to be loaded")
	}
	if res, ok := results["BPX"]; !ok || res.OK() {
		t.Errorf("Expected failed BPX result to be kept, got %v", res)
	}
	report := store.GetReport()
	if len(report.FailedDatasets) != 1 || report.FailedDatasets[0] != "BPX" {
		t.Errorf("Expected BPX in failed datasets, got %v", report.FailedDatasets)
	}
	if report.DrugsLoaded {
		t.Error("Expected drugs to be reported missing")
	}
}

func TestScheduler_KeepsPreviousOnFailure(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 4, "BPX": 2}}
	scheduler := NewScheduler(store, loader, testOptions("DEMO", "BPX"))

	if err := scheduler.updateData(context.Background()); err != nil {
		t.Fatalf("First update failed: %v", err)
	}
	previousBPX := store.GetResults()["BPX"]
	previousDrugs := store.GetDrugs()

	loader.failing = map[string]bool{"BPX": true}
	loader.drugsFail = true
	loader.rows["DEMO"] = 6
	if err := scheduler.updateData(context.Background()); err != nil {
		t.Fatalf("Second update failed: %v", err)
	}

	results := store.GetResults()
	if results["DEMO"].Table.Rows() != 6 {
		t.Errorf("Expected refreshed DEMO with 6 rows, got %d", results["DEMO"].Table.Rows())
	}
	if results["BPX"] != previousBPX {
		t.Error("Expected previous BPX result to be kept")
	}
	if store.GetDrugs() != previousDrugs {
		t.Error("Expected previous drugs table to be kept")
	}
	if store.updateCount != 2 {
		t.Errorf("Expected 2 updates, got %d", store.updateCount)
	}
}

func TestScheduler_DiscardsInvalidTable(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 2}}
	scheduler := NewScheduler(store, &emptyTableLoader{mockLoader: loader}, testOptions("DEMO"))

	if err := scheduler.updateData(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if res := store.GetResults()["DEMO"]; res.OK() {
		t.Error("Expected table without columns to be discarded")
	}
}

// emptyTableLoader returns tables without columns
type emptyTableLoader struct {
	*mockLoader
}

func (e *emptyTableLoader) Load(ctx context.Context, datasets []string, years nhanes.YearRange) nhanes.Results {
	results := make(nhanes.Results)
	for _, name := range datasets {
		results[name] = &nhanes.Result{Dataset: name, Table: table.New()}
	}
	return results
}

func TestScheduler_ConcurrentUpdatePrevention(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 1}}
	scheduler := NewScheduler(store, loader, testOptions("DEMO"))

	store.BeginUpdate()
	if err := scheduler.Start(); err != nil {
		t.Errorf("Unexpected error during start with concurrent update: %v", err)
	}
	defer scheduler.Stop()

	if store.updateCount != 0 {
		t.Errorf("Expected 0 updates due to concurrent update, got %d", store.updateCount)
	}
	if loader.loadCount != 0 {
		t.Errorf("Expected no load while another update runs, got %d", loader.loadCount)
	}
}

func TestScheduler_InvalidUpdateTimes(t *testing.T) {
	store := &mockSchedulerDataStore{}
	loader := &mockLoader{rows: map[string]int{"DEMO": 1}}
	opts := testOptions("DEMO")
	opts.UpdateTimes = "25:99"

	scheduler := NewScheduler(store, loader, opts)
	defer scheduler.Stop()
	if err := scheduler.Start(); err == nil {
		t.Error("Expected error for invalid update times")
	}
}
