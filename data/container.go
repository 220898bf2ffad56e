// Package data holds the loaded NHANES tables in memory. Readers get a
// consistent snapshot while the scheduler swaps in new results atomically.
package data

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer holds all the data with atomic values for zero-downtime updates
type DataContainer struct {
	results         atomic.Value // nhanes.Results
	drugs           atomic.Pointer[table.Table]
	report          atomic.Pointer[interfaces.DataQualityReport]
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a container with no datasets
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.results.Store(make(nhanes.Results))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetResults returns the results of the last load. The map must not be modified.
func (dc *DataContainer) GetResults() nhanes.Results {
	if v := dc.results.Load(); v != nil {
		if results, ok := v.(nhanes.Results); ok {
			return results
		}
	}

	logging.Warn("Results are empty or invalid")
	return make(nhanes.Results)
}

// GetDataset looks a dataset up case-insensitively
func (dc *DataContainer) GetDataset(name string) (*nhanes.Result, bool) {
	results := dc.GetResults()
	if res, ok := results[name]; ok {
		return res, true
	}
	res, ok := results[strings.ToUpper(name)]
	return res, ok
}

// GetDrugs returns the drug lookup table, or nil if it never loaded
func (dc *DataContainer) GetDrugs() *table.Table {
	return dc.drugs.Load()
}

// GetReport returns the quality report of the last load
func (dc *DataContainer) GetReport() *interfaces.DataQualityReport {
	return dc.report.Load()
}

func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData replaces the snapshot and stamps the update time
func (dc *DataContainer) UpdateData(results nhanes.Results, drugs *table.Table, report *interfaces.DataQualityReport) {
	if results == nil {
		results = make(nhanes.Results)
	}
	dc.results.Store(results)
	dc.drugs.Store(drugs)
	dc.report.Store(report)
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate returns false if another update is already running
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
