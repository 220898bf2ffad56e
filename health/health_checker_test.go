package health

import (
	"net/http"
	"testing"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

// MockHealthDataStore for testing
type MockHealthDataStore struct {
	results     nhanes.Results
	drugs       *table.Table
	lastUpdated time.Time
	isUpdating  bool
}

func (m *MockHealthDataStore) GetResults() nhanes.Results { return m.results }
func (m *MockHealthDataStore) GetDataset(name string) (*nhanes.Result, bool) {
	res, ok := m.results[name]
	return res, ok
}
func (m *MockHealthDataStore) GetDrugs() *table.Table { return m.drugs }
func (m *MockHealthDataStore) GetReport() *interfaces.DataQualityReport { return nil }
func (m *MockHealthDataStore) GetLastUpdated() time.Time { return m.lastUpdated }
func (m *MockHealthDataStore) IsUpdating() bool { return m.isUpdating }
func (m *MockHealthDataStore) GetServerStartTime() time.Time { return time.Time{} }
func (m *MockHealthDataStore) BeginUpdate() bool { return true }
func (m *MockHealthDataStore) EndUpdate() {}
func (m *MockHealthDataStore) UpdateData(nhanes.Results, *table.Table, *interfaces.DataQualityReport) {}

func loadedResult(t *testing.T, name string, rows int) *nhanes.Result {
	t.Helper()
	tbl := table.New()
	if err := tbl.AddColumn(table.NewNumeric("SEQN", make([]float64, rows), nil)); err != nil {
		t.Fatal(err)
	}
	return &nhanes.Result{Dataset: name, Table: tbl}
}

func TestHealthCheck(t *testing.T) {
	now := time.Date(2025, 10, 7, 12, 0, 0, 0, time.UTC)
	demo := loadedResult(t, "DEMO", 10)
	failedBPX := &nhanes.Result{Dataset: "BPX", Err: table.ErrNoTables}

	tests := []struct {
		name       string
		store      *MockHealthDataStore
		wantStatus string
		wantHTTP   int
	}{
		{
			name:       "no data",
			store:      &MockHealthDataStore{results: nhanes.Results{}, lastUpdated: now},
			wantStatus: "unhealthy",
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "every dataset failed",
			store:      &MockHealthDataStore{results: nhanes.Results{"BPX": failedBPX}, lastUpdated: now},
			wantStatus: "unhealthy",
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "fresh data",
			store:      &MockHealthDataStore{results: nhanes.Results{"DEMO": demo}, lastUpdated: now.Add(-time.Hour)},
			wantStatus: "healthy",
			wantHTTP:   http.StatusOK,
		},
		{
			name:       "partial failure",
			store:      &MockHealthDataStore{results: nhanes.Results{"DEMO": demo, "BPX": failedBPX}, lastUpdated: now},
			wantStatus: "degraded",
			wantHTTP:   http.StatusOK,
		},
		{
			name:       "stale data",
			store:      &MockHealthDataStore{results: nhanes.Results{"DEMO": demo}, lastUpdated: now.Add(-30 * time.Hour)},
			wantStatus: "degraded",
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "very stale data",
			store:      &MockHealthDataStore{results: nhanes.Results{"DEMO": demo}, lastUpdated: now.Add(-72 * time.Hour)},
			wantStatus: "unhealthy",
			wantHTTP:   http.StatusServiceUnavailable,
		},
		{
			name:       "long running update",
			store:      &MockHealthDataStore{results: nhanes.Results{"DEMO": demo}, lastUpdated: now.Add(-8 * time.Hour), isUpdating: true},
			wantStatus: "degraded",
			wantHTTP:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(tt.store, "03:00").(*HealthCheckerImpl)
			checker.now = func() time.Time { return now }

			status, data, httpStatus := checker.HealthCheck()
			if status != tt.wantStatus {
				t.Errorf("Expected status %s, got %s", tt.wantStatus, status)
			}
			if httpStatus != tt.wantHTTP {
				t.Errorf("Expected HTTP %d, got %d", tt.wantHTTP, httpStatus)
			}
			for _, key := range []string{"last_update", "data_age_hours", "datasets", "failed_datasets", "rows", "drugs_loaded", "is_updating", "next_update"} {
				if _, ok := data[key]; !ok {
					t.Errorf("Expected key %s in health data", key)
				}
			}
		})
	}
}

func TestHealthCheckCounts(t *testing.T) {
	store := &MockHealthDataStore{
		results: nhanes.Results{
			"DEMO": loadedResult(t, "DEMO", 10),
			"BPX":  loadedResult(t, "BPX", 5),
			"RXQ":  {Dataset: "RXQ", Err: table.ErrNoTables},
		},
		drugs:       table.New(),
		lastUpdated: time.Now(),
	}

	_, data, _ := NewHealthChecker(store, "03:00").HealthCheck()
	if data["datasets"] != 2 || data["failed_datasets"] != 1 || data["rows"] != 15 {
		t.Errorf("Unexpected counts: %v", data)
	}
	if data["drugs_loaded"] != true {
		t.Errorf("Expected drugs_loaded true, got %v", data["drugs_loaded"])
	}
}

func TestCalculateNextUpdate(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name     string
		times    string
		now      time.Time
		expected time.Time
	}{
		{"before single time", "03:00", time.Date(2025, 10, 7, 1, 0, 0, 0, loc), time.Date(2025, 10, 7, 3, 0, 0, 0, loc)},
		{"after single time", "03:00", time.Date(2025, 10, 7, 4, 0, 0, 0, loc), time.Date(2025, 10, 8, 3, 0, 0, 0, loc)},
		{"exactly at time", "03:00", time.Date(2025, 10, 7, 3, 0, 0, 0, loc), time.Date(2025, 10, 8, 3, 0, 0, 0, loc)},
		{"between two times", "06:00;18:00", time.Date(2025, 10, 7, 12, 0, 0, 0, loc), time.Date(2025, 10, 7, 18, 0, 0, 0, loc)},
		{"after two times", "06:00;18:00", time.Date(2025, 10, 7, 20, 0, 0, 0, loc), time.Date(2025, 10, 8, 6, 0, 0, 0, loc)},
		{"malformed falls back", "soon", time.Date(2025, 10, 7, 1, 0, 0, 0, loc), time.Date(2025, 10, 7, 3, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker(&MockHealthDataStore{}, tt.times).(*HealthCheckerImpl)
			checker.now = func() time.Time { return tt.now }
			if got := checker.CalculateNextUpdate(); !got.Equal(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}
