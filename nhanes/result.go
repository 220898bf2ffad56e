package nhanes

import (
	"errors"
	"fmt"
	"sort"

	"github.com/giygas/nhanes-api/nhanes/table"
)

// FetchError records one (dataset, year) file that could not be retrieved.
type FetchError struct {
	Dataset string
	Year    int
	URL     string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %d: %s: %v", e.Dataset, e.Year, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is the outcome of loading one dataset: the concatenated table, or
// the reason there is none. Failures lists the years that contributed
// nothing even when a table was built.
type Result struct {
	Dataset  string
	Table    *table.Table
	Years    []int
	Failures []*FetchError
	Err      error
}

// OK reports whether the dataset produced a table.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil && r.Table != nil
}

// Results maps each requested dataset to its Result.
type Results map[string]*Result

// Datasets returns the dataset names in sorted order.
func (rs Results) Datasets() []string {
	names := make([]string, 0, len(rs))
	for name := range rs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns the successfully loaded tables.
func (rs Results) Tables() map[string]*table.Table {
	tables := make(map[string]*table.Table, len(rs))
	for name, r := range rs {
		if r.OK() {
			tables[name] = r.Table
		}
	}
	return tables
}

// Err joins the errors of every dataset that produced no table, or returns
// nil when all of them loaded. Callers decide whether partial failure is fatal.
func (rs Results) Err() error {
	var errs []error
	for _, name := range rs.Datasets() {
		if r := rs[name]; !r.OK() {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
