// Package health reports service health from the state of the data store.
package health

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore   interfaces.DataStore
	updateTimes []clock
	now         func() time.Time
}

type clock struct {
	hour, minute int
}

// NewHealthChecker creates a health checker. updateTimes uses the scheduler
// syntax, "HH:MM" entries separated by ';'.
func NewHealthChecker(dataStore interfaces.DataStore, updateTimes string) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore:   dataStore,
		updateTimes: parseUpdateTimes(updateTimes),
		now:         time.Now,
	}
}

// HealthCheck is unhealthy with no loaded dataset or data older than 48h,
// degraded when some datasets failed, data is older than 24h, or an update
// has been running for more than 6h of staleness.
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	results := h.dataStore.GetResults()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()
	dataAge := h.now().Sub(lastUpdate)

	loaded, failed := 0, 0
	rows := 0
	for _, res := range results {
		if res.OK() {
			loaded++
			rows += res.Table.Rows()
		} else {
			failed++
		}
	}

	switch {
	case loaded == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 24*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && dataAge > 6*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case failed > 0:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	data = map[string]any{
		"last_update":     lastUpdate.Format(time.RFC3339),
		"data_age_hours":  math.Round(dataAge.Hours()*10) / 10,
		"datasets":        loaded,
		"failed_datasets": failed,
		"rows":            rows,
		"drugs_loaded":    h.dataStore.GetDrugs() != nil,
		"is_updating":     isUpdating,
		"next_update":     h.CalculateNextUpdate().Format(time.RFC3339),
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next configured update time after now
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	now := h.now()
	var next time.Time
	for _, c := range h.updateTimes {
		t := time.Date(now.Year(), now.Month(), now.Day(), c.hour, c.minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// parseUpdateTimes ignores malformed entries and falls back to 03:00
func parseUpdateTimes(times string) []clock {
	var clocks []clock
	for entry := range strings.SplitSeq(times, ";") {
		t, err := time.Parse("15:04", strings.TrimSpace(entry))
		if err != nil {
			continue
		}
		clocks = append(clocks, clock{hour: t.Hour(), minute: t.Minute()})
	}
	if len(clocks) == 0 {
		clocks = []clock{{hour: 3}}
	}
	return clocks
}
