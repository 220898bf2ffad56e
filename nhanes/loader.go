// Package nhanes retrieves NHANES survey components published as per-cycle
// SAS transport files and merges the years of each component into one table.
package nhanes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giygas/nhanes-api/logging"
	"github.com/giygas/nhanes-api/metrics"
	"github.com/giygas/nhanes-api/nhanes/table"
)

const (
	fileExt = ".XPT"

	// YearColumn is added to every fetched table with its source year.
	YearColumn = "year"
)

// YearRange is the half-open range [Start, End) of survey years to load.
type YearRange struct {
	Start int
	End   int
}

// Years lists the years of the range in order.
func (y YearRange) Years() []int {
	var years []int
	for year := y.Start; year < y.End; year++ {
		years = append(years, year)
	}
	return years
}

// Loader fetches NHANES files sequentially and concatenates them per dataset.
type Loader struct {
	baseURL  string
	drugsURL string
	fetcher  Fetcher
	logger   *slog.Logger
	urls     *URLBuilder
}

// Option configures a Loader.
type Option func(*Loader)

// WithBaseURL points the loader at a mirror of the CDC file tree.
func WithBaseURL(baseURL string) Option {
	return func(l *Loader) {
		l.baseURL = baseURL
	}
}

// WithDrugsURL replaces the default location used by LoadDrugs.
func WithDrugsURL(location string) Option {
	return func(l *Loader) {
		l.drugsURL = location
	}
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithLogger sets the logger the loader and its URL builder report to.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader reading from BaseURL with a default HTTP fetcher.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		baseURL:  BaseURL,
		drugsURL: DrugsURL,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.Logger()
	}
	if l.fetcher == nil {
		l.fetcher = NewHTTPFetcher(DefaultFetchTimeout)
	}
	l.urls = NewURLBuilder(l.baseURL, l.logger)
	return l
}

// URLs returns the builder the loader resolves locations with.
func (l *Loader) URLs() *URLBuilder {
	return l.urls
}

// YearRangeOf builds a YearRange from a (start, end) pair. Any other number
// of values is logged and the range is built from what is there.
func (l *Loader) YearRangeOf(values ...int) YearRange {
	if len(values) != 2 {
		l.logger.Error("Provide year range as a pair of ints: (year_start, year_end)", "values", values)
	}
	var y YearRange
	if len(values) > 0 {
		y.Start = values[0]
		y.End = values[0]
	}
	if len(values) > 1 {
		y.End = values[1]
	}
	return y
}

// Load retrieves every dataset for the years in the range and returns one
// Result per dataset. Each distinct location is attempted at most once per
// call, even after a failure. A dataset listed twice keeps its first Result.
// Per-file errors are logged and recorded on the Result; they never abort the
// other datasets.
func (l *Loader) Load(ctx context.Context, datasets []string, years YearRange) Results {
	if years.End < years.Start {
		l.logger.Error("Provide year range as (year_start, year_end) with year_start <= year_end",
			"start", years.Start, "end", years.End)
	}

	visited := make(map[string]struct{})
	results := make(Results, len(datasets))

	for _, dataset := range datasets {
		if _, done := results[dataset]; done {
			l.logger.Warn("Dataset listed more than once, keeping the first load", "dataset", dataset)
			continue
		}
		res := &Result{Dataset: dataset}
		var parts []*table.Table

		for year := years.Start; year < years.End; year++ {
			location := l.urls.URL(dataset, year) + fileExt
			if _, seen := visited[location]; seen {
				metrics.LoaderSkippedTotal.WithLabelValues(dataset).Inc()
				continue
			}
			visited[location] = struct{}{}

			if err := ctx.Err(); err != nil {
				l.logger.Error("Failed to read NHANES file", "dataset", dataset, "url", location, "error", err)
				res.Failures = append(res.Failures, &FetchError{Dataset: dataset, Year: year, URL: location, Err: err})
				break
			}

			tbl, err := l.fetch(ctx, dataset, location)
			if err != nil {
				l.logger.Error("Failed to read NHANES file", "dataset", dataset, "url", location, "error", err)
				res.Failures = append(res.Failures, &FetchError{Dataset: dataset, Year: year, URL: location, Err: err})
				continue
			}

			rows, cols := tbl.Shape()
			l.logger.Info(fmt.Sprintf("read %d rows x %d cols from %s", rows, cols, location),
				"dataset", dataset, "year", year)
			tbl.SetConstant(YearColumn, float64(year))
			parts = append(parts, tbl)
			res.Years = append(res.Years, year)
		}

		combined, err := table.Concat(parts...)
		if err != nil {
			errs := []error{err}
			for _, f := range res.Failures {
				errs = append(errs, f)
			}
			res.Err = fmt.Errorf("dataset %s: %w", dataset, errors.Join(errs...))
			l.logger.Error("Failed to combine NHANES files", "dataset", dataset, "error", err)
		} else {
			res.Table = combined
			rows, cols := combined.Shape()
			l.logger.Info(fmt.Sprintf("combined %s datasets: %d rows x %d cols", dataset, rows, cols),
				"files", len(parts))
		}
		results[dataset] = res
	}

	return results
}

func (l *Loader) fetch(ctx context.Context, dataset, location string) (*table.Table, error) {
	start := time.Now()
	tbl, err := l.fetcher.Fetch(ctx, location)
	metrics.LoaderFetchDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LoaderFetchTotal.WithLabelValues(dataset, status).Inc()
	return tbl, err
}

// LoadDrugs retrieves the prescription drug lookup table from location, or
// from the configured drugs URL when location is empty. Unlike Load, errors
// are returned to the caller.
func (l *Loader) LoadDrugs(ctx context.Context, location string) (*table.Table, error) {
	if location == "" {
		location = l.drugsURL
	}
	tbl, err := l.fetcher.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	rows, cols := tbl.Shape()
	l.logger.Info(fmt.Sprintf("read %d rows x %d cols from %s", rows, cols, location))
	return tbl, nil
}
