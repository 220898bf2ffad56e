// Package interfaces defines the contracts between the NHANES loader, the
// in-memory store, the scheduler and the HTTP layer.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

// DataQualityReport summarizes a load: which datasets produced a table,
// which did not, and columns that hold no value at all.
type DataQualityReport struct {
	LoadedDatasets []string
	FailedDatasets []string
	FailedFiles    int                 // (dataset, year) files that could not be read
	TotalRows      int                 // Rows over all loaded datasets
	EmptyColumns   map[string][]string // Dataset -> columns where every value is missing
	DrugsLoaded    bool
}

// DataStore holds the latest load results for concurrent readers. Updates
// replace the whole snapshot atomically.
type DataStore interface {
	GetResults() nhanes.Results
	GetDataset(name string) (*nhanes.Result, bool)
	GetDrugs() *table.Table
	GetReport() *DataQualityReport
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateData(results nhanes.Results, drugs *table.Table, report *DataQualityReport)
	BeginUpdate() bool
	EndUpdate()
}

// Loader retrieves NHANES datasets and the drug lookup table.
// *nhanes.Loader is the production implementation.
type Loader interface {
	Load(ctx context.Context, datasets []string, years nhanes.YearRange) nhanes.Results
	LoadDrugs(ctx context.Context, location string) (*table.Table, error)
}

// Scheduler runs the initial load and the periodic reloads.
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler lists the API endpoints.
type HTTPHandler interface {
	ServeDatasetsV1(w http.ResponseWriter, r *http.Request)
	ServeDatasetV1(w http.ResponseWriter, r *http.Request)
	ServeColumnsV1(w http.ResponseWriter, r *http.Request)
	ExportDatasetV1(w http.ResponseWriter, r *http.Request)
	ServeDrugsV1(w http.ResponseWriter, r *http.Request)
	ServeURLV1(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker reports service health from the state of the store.
type HealthChecker interface {
	HealthCheck() (status string, data map[string]any, httpStatus int)
	CalculateNextUpdate() time.Time
}

// DataValidator validates request parameters and loaded data.
type DataValidator interface {
	// ValidateDataset checks an identifier and returns it upper-cased
	ValidateDataset(input string) (string, error)

	// ValidateYear parses a four-digit survey year
	ValidateYear(input string) (int, error)

	// ValidatePagination parses page and pageSize, applying defaults for empty values
	ValidatePagination(page, pageSize string) (int, int, error)

	// ValidateFormat returns the normalized export format
	ValidateFormat(input string) (string, error)

	// ValidateTable checks that a loaded table is usable
	ValidateTable(t *table.Table) error

	// ReportDataQuality summarizes a load
	ReportDataQuality(results nhanes.Results, drugs *table.Table) *DataQualityReport
}
