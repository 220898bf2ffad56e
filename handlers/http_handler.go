// Package handlers serves the loaded NHANES datasets over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
	"github.com/go-chi/chi/v5"
)

var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.DataStore
	validator     interfaces.DataValidator
	healthChecker interfaces.HealthChecker
	urls          *nhanes.URLBuilder
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(dataStore interfaces.DataStore, validator interfaces.DataValidator,
	healthChecker interfaces.HealthChecker, urls *nhanes.URLBuilder) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		validator:     validator,
		healthChecker: healthChecker,
		urls:          urls,
	}
}

// DatasetSummary describes one configured dataset
type DatasetSummary struct {
	Name        string `json:"name"`
	Loaded      bool   `json:"loaded"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	Years       []int  `json:"years"`
	FailedYears []int  `json:"failedYears"`
	Error       string `json:"error,omitempty"`
}

// ColumnInfo describes one column of a dataset
type ColumnInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label,omitempty"`
	Kind    string `json:"kind"`
	Missing int    `json:"missing"`
}

// PagedRows is the body of the paged row endpoints
type PagedRows struct {
	Columns    []string         `json:"columns"`
	Data       []map[string]any `json:"data"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	MaxPage    int              `json:"maxPage"`
}

// HealthResponse keeps a stable JSON field order
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// RespondWithJSON writes payload as JSON with the given status
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err, "payload_type", fmt.Sprintf("%T", payload))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if lastUpdated := h.dataStore.GetLastUpdated(); !lastUpdated.IsZero() {
		w.Header().Set("Last-Modified", lastUpdated.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a {error, message, code} JSON body
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	h.RespondWithJSON(w, code, map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	})
}

// ServeDatasetsV1 lists every configured dataset with its load outcome
func (h *HTTPHandlerImpl) ServeDatasetsV1(w http.ResponseWriter, r *http.Request) {
	results := h.dataStore.GetResults()
	summaries := make([]DatasetSummary, 0, len(results))
	for _, name := range results.Datasets() {
		summaries = append(summaries, summarize(results[name]))
	}
	h.RespondWithJSON(w, http.StatusOK, summaries)
}

// ServeDatasetV1 returns one page of rows of a dataset
func (h *HTTPHandlerImpl) ServeDatasetV1(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookupDataset(w, r)
	if !ok {
		return
	}
	h.servePage(w, r, res.Table)
}

// ServeColumnsV1 describes the columns of a dataset
func (h *HTTPHandlerImpl) ServeColumnsV1(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookupDataset(w, r)
	if !ok {
		return
	}

	columns := make([]ColumnInfo, 0, res.Table.Cols())
	for _, col := range res.Table.Columns() {
		missing := 0
		for _, m := range col.Missing {
			if m {
				missing++
			}
		}
		columns = append(columns, ColumnInfo{
			Name:    col.Name,
			Label:   col.Label,
			Kind:    col.Kind.String(),
			Missing: missing,
		})
	}
	h.RespondWithJSON(w, http.StatusOK, columns)
}

// ServeDrugsV1 returns one page of the prescription drug lookup table
func (h *HTTPHandlerImpl) ServeDrugsV1(w http.ResponseWriter, r *http.Request) {
	drugs := h.dataStore.GetDrugs()
	if drugs == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Drug lookup table is not loaded")
		return
	}
	h.servePage(w, r, drugs)
}

// ServeURLV1 resolves ?dataset=&year= to the location of the source file
func (h *HTTPHandlerImpl) ServeURLV1(w http.ResponseWriter, r *http.Request) {
	dataset, err := h.validator.ValidateDataset(r.URL.Query().Get("dataset"))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	year, err := h.validator.ValidateYear(r.URL.Query().Get("year"))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	location, err := h.urls.Build(dataset, year)
	switch {
	case errors.Is(err, nhanes.ErrNoCycle):
		h.RespondWithError(w, http.StatusNotFound, fmt.Sprintf("No NHANES data for year %d", year))
		return
	case err != nil:
		logging.Error("Failed to build NHANES URL", "dataset", dataset, "year", year, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to build URL")
		return
	}

	cycle, _ := nhanes.CycleFor(year)
	h.RespondWithJSON(w, http.StatusOK, map[string]any{
		"dataset": dataset,
		"year":    year,
		"cycle":   cycle.Label,
		"url":     location,
		"file":    location + ".XPT",
	})
}

// HealthCheck reports data health and basic runtime statistics
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.healthChecker.HealthCheck()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var uptime time.Duration
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		uptime = time.Since(start)
	}

	h.RespondWithJSON(w, httpStatus, HealthResponse{
		Status:        status,
		UptimeSeconds: uptime.Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	})
}

// lookupDataset validates the {name} parameter and writes the error
// response itself when the dataset is unknown or failed to load.
func (h *HTTPHandlerImpl) lookupDataset(w http.ResponseWriter, r *http.Request) (*nhanes.Result, bool) {
	name, err := h.validator.ValidateDataset(chi.URLParam(r, "name"))
	if err != nil {
		logging.Warn("Unusual user input", "name", chi.URLParam(r, "name"))
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	res, ok := h.dataStore.GetDataset(name)
	if !ok {
		h.RespondWithError(w, http.StatusNotFound, fmt.Sprintf("Dataset %s is not configured", name))
		return nil, false
	}
	if !res.OK() {
		h.RespondWithError(w, http.StatusServiceUnavailable, fmt.Sprintf("Dataset %s failed to load", name))
		return nil, false
	}
	return res, true
}

func (h *HTTPHandlerImpl) servePage(w http.ResponseWriter, r *http.Request, t *table.Table) {
	page, pageSize, err := h.validator.ValidatePagination(r.URL.Query().Get("page"), r.URL.Query().Get("pageSize"))
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	total := t.Rows()
	start := (page - 1) * pageSize
	if start >= total && page > 1 {
		h.RespondWithError(w, http.StatusNotFound, "Page not found")
		return
	}
	end := min(start+pageSize, total)

	rows := make([]map[string]any, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		rows = append(rows, t.Row(i))
	}

	h.RespondWithJSON(w, http.StatusOK, PagedRows{
		Columns:    t.Names(),
		Data:       rows,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		MaxPage:    (total + pageSize - 1) / pageSize,
	})
}

func summarize(res *nhanes.Result) DatasetSummary {
	s := DatasetSummary{
		Name:        res.Dataset,
		Loaded:      res.OK(),
		Years:       []int{},
		FailedYears: []int{},
	}
	s.Years = append(s.Years, res.Years...)
	for _, f := range res.Failures {
		s.FailedYears = append(s.FailedYears, f.Year)
	}
	if res.OK() {
		s.Rows, s.Cols = res.Table.Shape()
	} else if res.Err != nil {
		s.Error = res.Err.Error()
	}
	return s
}

// memberName fits a dataset identifier into a transport member name
func memberName(dataset string) string {
	dataset = strings.ToUpper(dataset)
	if len(dataset) > 8 {
		return dataset[:8]
	}
	return dataset
}
