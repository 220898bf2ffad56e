package data

import (
	"sync"
	"testing"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

func sampleResults(t *testing.T, rows int) nhanes.Results {
	t.Helper()
	values := make([]float64, rows)
	for i := range values {
		values[i] = float64(i + 1)
	}
	tbl := table.New()
	if err := tbl.AddColumn(table.NewNumeric("SEQN", values, nil)); err != nil {
		t.Fatal(err)
	}
	return nhanes.Results{
		"DEMO": {Dataset: "DEMO", Table: tbl, Years: []int{1999}},
	}
}

func TestNewDataContainer(t *testing.T) {
	dc := NewDataContainer()

	if dc.IsUpdating() {
		t.Error("NewDataContainer should not be updating")
	}
	if !dc.GetLastUpdated().IsZero() {
		t.Error("NewDataContainer should have zero lastUpdated time")
	}
	if !dc.GetServerStartTime().IsZero() {
		t.Error("NewDataContainer should have zero server start time")
	}
	if results := dc.GetResults(); results == nil || len(results) != 0 {
		t.Errorf("NewDataContainer should have empty results, got %v", results)
	}
	if dc.GetDrugs() != nil {
		t.Error("NewDataContainer should have no drugs table")
	}
	if dc.GetReport() != nil {
		t.Error("NewDataContainer should have no report")
	}
}

func TestUpdateData(t *testing.T) {
	dc := NewDataContainer()
	results := sampleResults(t, 3)
	drugs := table.New()
	report := &interfaces.DataQualityReport{LoadedDatasets: []string{"DEMO"}}

	before := time.Now()
	dc.UpdateData(results, drugs, report)

	res, ok := dc.GetDataset("DEMO")
	if !ok || res.Table.Rows() != 3 {
		t.Fatalf("Expected DEMO with 3 rows, got %v %v", res, ok)
	}
	if _, ok := dc.GetDataset("demo"); !ok {
		t.Error("GetDataset should be case-insensitive")
	}
	if _, ok := dc.GetDataset("BPX"); ok {
		t.Error("GetDataset should not find BPX")
	}
	if dc.GetDrugs() != drugs {
		t.Error("Expected drugs table to be stored")
	}
	if dc.GetReport() != report {
		t.Error("Expected report to be stored")
	}
	if dc.GetLastUpdated().Before(before) {
		t.Error("Expected lastUpdated to be refreshed")
	}

	dc.UpdateData(nil, nil, nil)
	if results := dc.GetResults(); results == nil || len(results) != 0 {
		t.Errorf("Expected empty results after nil update, got %v", results)
	}
}

func TestBeginUpdateEndUpdate(t *testing.T) {
	dc := NewDataContainer()

	if !dc.BeginUpdate() {
		t.Fatal("First BeginUpdate should succeed")
	}
	if !dc.IsUpdating() {
		t.Error("Expected IsUpdating to be true")
	}
	if dc.BeginUpdate() {
		t.Error("Second BeginUpdate should fail while updating")
	}

	dc.EndUpdate()
	if dc.IsUpdating() {
		t.Error("Expected IsUpdating to be false after EndUpdate")
	}
	if !dc.BeginUpdate() {
		t.Error("BeginUpdate should succeed after EndUpdate")
	}
}

func TestServerStartTime(t *testing.T) {
	dc := NewDataContainer()
	start := time.Date(2025, 10, 7, 8, 0, 0, 0, time.UTC)
	dc.SetServerStartTime(start)
	if !dc.GetServerStartTime().Equal(start) {
		t.Errorf("Expected %v, got %v", start, dc.GetServerStartTime())
	}
}

func TestConcurrentAccess(t *testing.T) {
	dc := NewDataContainer()
	dc.UpdateData(sampleResults(t, 1), nil, nil)

	snapshots := []nhanes.Results{sampleResults(t, 2), sampleResults(t, 4)}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				res, ok := dc.GetDataset("DEMO")
				if !ok || res.Table == nil {
					t.Errorf("reader %d: DEMO missing during update", id)
					return
				}
				// A snapshot is never half swapped
				if rows := res.Table.Rows(); rows != 1 && rows != 2 && rows != 4 {
					t.Errorf("reader %d: unexpected row count %d", id, rows)
					return
				}
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if dc.BeginUpdate() {
					dc.UpdateData(snapshots[(id+j)%2], nil, nil)
					dc.EndUpdate()
				}
			}
		}(i)
	}

	wg.Wait()
}
