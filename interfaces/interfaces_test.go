package interfaces

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

// MockDataStore implements DataStore interface for testing
type MockDataStore struct {
	results     nhanes.Results
	drugs       *table.Table
	report      *DataQualityReport
	lastUpdated time.Time
	updating    bool
}

func (m *MockDataStore) GetResults() nhanes.Results {
	return m.results
}

func (m *MockDataStore) GetDataset(name string) (*nhanes.Result, bool) {
	res, ok := m.results[name]
	return res, ok
}

func (m *MockDataStore) GetDrugs() *table.Table {
	return m.drugs
}

func (m *MockDataStore) GetReport() *DataQualityReport {
	return m.report
}

func (m *MockDataStore) GetLastUpdated() time.Time {
	return m.lastUpdated
}

func (m *MockDataStore) IsUpdating() bool {
	return m.updating
}

func (m *MockDataStore) GetServerStartTime() time.Time {
	return time.Time{}
}

func (m *MockDataStore) UpdateData(results nhanes.Results, drugs *table.Table, report *DataQualityReport) {
	m.results = results
	m.drugs = drugs
	m.report = report
	m.lastUpdated = time.Now()
}

func (m *MockDataStore) BeginUpdate() bool {
	if m.updating {
		return false
	}
	m.updating = true
	return true
}

func (m *MockDataStore) EndUpdate() {
	m.updating = false
}

// MockLoader implements Loader interface for testing
type MockLoader struct {
	shouldFail bool
}

func (m *MockLoader) Load(ctx context.Context, datasets []string, years nhanes.YearRange) nhanes.Results {
	results := make(nhanes.Results, len(datasets))
	for _, name := range datasets {
		if m.shouldFail {
			results[name] = &nhanes.Result{Dataset: name, Err: table.ErrNoTables}
			continue
		}
		tbl := table.New()
		_ = tbl.AddColumn(table.NewNumeric("SEQN", []float64{1, 2}, nil))
		results[name] = &nhanes.Result{Dataset: name, Table: tbl, Years: years.Years()}
	}
	return results
}

func (m *MockLoader) LoadDrugs(ctx context.Context, location string) (*table.Table, error) {
	if m.shouldFail {
		return nil, errors.New("drugs failed")
	}
	return table.New(), nil
}

// MockScheduler implements Scheduler interface for testing
type MockScheduler struct {
	started bool
	stopped bool
}

func (m *MockScheduler) Start() error {
	if m.started {
		return errors.New("already started")
	}
	m.started = true
	return nil
}

func (m *MockScheduler) Stop() {
	m.stopped = true
}

// Compile-time checks
var (
	_ DataStore = (*MockDataStore)(nil)
	_ Loader    = (*MockLoader)(nil)
	_ Scheduler = (*MockScheduler)(nil)
)

func TestDataStoreInterface(t *testing.T) {
	var store DataStore = &MockDataStore{}

	if !store.BeginUpdate() {
		t.Fatal("first BeginUpdate should succeed")
	}
	if store.BeginUpdate() {
		t.Error("second BeginUpdate should fail while updating")
	}
	if !store.IsUpdating() {
		t.Error("store should report updating")
	}

	results := nhanes.Results{"DEMO": {Dataset: "DEMO", Err: table.ErrNoTables}}
	store.UpdateData(results, nil, &DataQualityReport{FailedDatasets: []string{"DEMO"}})
	store.EndUpdate()

	if store.IsUpdating() {
		t.Error("store should not report updating after EndUpdate")
	}
	if store.GetLastUpdated().IsZero() {
		t.Error("UpdateData should set the last updated time")
	}
	res, ok := store.GetDataset("DEMO")
	if !ok || res.OK() {
		t.Errorf("GetDataset(DEMO) = %v, %v; want failed result", res, ok)
	}
	if got := store.GetReport().FailedDatasets; len(got) != 1 {
		t.Errorf("FailedDatasets = %v", got)
	}
}

func TestLoaderInterface(t *testing.T) {
	var loader Loader = &MockLoader{}
	years := nhanes.YearRange{Start: 2017, End: 2019}

	results := loader.Load(context.Background(), []string{"DEMO", "BMX"}, years)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if err := results.Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got := results["DEMO"].Years; len(got) != 2 {
		t.Errorf("Years = %v", got)
	}

	loader = &MockLoader{shouldFail: true}
	results = loader.Load(context.Background(), []string{"DEMO"}, years)
	if !errors.Is(results.Err(), table.ErrNoTables) {
		t.Errorf("expected ErrNoTables, got %v", results.Err())
	}
	if _, err := loader.LoadDrugs(context.Background(), ""); err == nil {
		t.Error("expected LoadDrugs error")
	}
}

func TestSchedulerInterface(t *testing.T) {
	scheduler := &MockScheduler{}

	if err := scheduler.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := scheduler.Start(); err == nil {
		t.Error("second Start should fail")
	}

	scheduler.Stop()
	if !scheduler.stopped {
		t.Error("Scheduler should be stopped")
	}
}
