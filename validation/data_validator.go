// Package validation checks request parameters and loaded NHANES tables.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/giygas/nhanes-api/interfaces"
	"github.com/giygas/nhanes-api/nhanes"
	"github.com/giygas/nhanes-api/nhanes/table"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	FormatCSV = "csv"
	FormatXPT = "xpt"
)

var datasetRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

var (
	ErrInvalidDataset    = errors.New("invalid dataset identifier")
	ErrInvalidYear       = errors.New("invalid year")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrInvalidFormat     = errors.New("invalid export format")
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

func (v *DataValidatorImpl) ValidateDataset(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !datasetRegex.MatchString(input) {
		return "", fmt.Errorf("%w: %q must be 1-16 letters, digits or underscores", ErrInvalidDataset, input)
	}
	return strings.ToUpper(input), nil
}

func (v *DataValidatorImpl) ValidateYear(input string) (int, error) {
	input = strings.TrimSpace(input)
	if len(input) != 4 {
		return 0, fmt.Errorf("%w: %q must have four digits", ErrInvalidYear, input)
	}
	year, err := strconv.Atoi(input)
	if err != nil || year < 1000 {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidYear, input)
	}
	return year, nil
}

func (v *DataValidatorImpl) ValidatePagination(page, pageSize string) (int, int, error) {
	p, size := 1, DefaultPageSize

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("%w: page must be a positive integer, got %q", ErrInvalidPagination, page)
		}
		p = n
	}

	if pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n < 1 || n > MaxPageSize {
			return 0, 0, fmt.Errorf("%w: pageSize must be between 1 and %d, got %q", ErrInvalidPagination, MaxPageSize, pageSize)
		}
		size = n
	}

	return p, size, nil
}

func (v *DataValidatorImpl) ValidateFormat(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXPT:
		return FormatXPT, nil
	}
	return "", fmt.Errorf("%w: %q, use csv or xpt", ErrInvalidFormat, input)
}

// ValidateTable rejects nil or empty tables and columns whose length does
// not match the table.
func (v *DataValidatorImpl) ValidateTable(t *table.Table) error {
	if t == nil {
		return fmt.Errorf("table is nil")
	}
	if t.Cols() == 0 {
		return fmt.Errorf("table has no columns")
	}
	for _, col := range t.Columns() {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("table has an unnamed column")
		}
		if col.Len() != t.Rows() {
			return fmt.Errorf("column %s has %d values, table has %d rows", col.Name, col.Len(), t.Rows())
		}
	}
	return nil
}

func (v *DataValidatorImpl) ReportDataQuality(results nhanes.Results, drugs *table.Table) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		LoadedDatasets: []string{},
		FailedDatasets: []string{},
		EmptyColumns:   make(map[string][]string),
		DrugsLoaded:    drugs != nil,
	}

	for _, name := range results.Datasets() {
		res := results[name]
		report.FailedFiles += len(res.Failures)
		if !res.OK() {
			report.FailedDatasets = append(report.FailedDatasets, name)
			continue
		}
		report.LoadedDatasets = append(report.LoadedDatasets, name)
		report.TotalRows += res.Table.Rows()

		for _, col := range res.Table.Columns() {
			if allMissing(col) {
				report.EmptyColumns[name] = append(report.EmptyColumns[name], col.Name)
			}
		}
	}

	return report
}

func allMissing(col *table.Column) bool {
	if col.Len() == 0 {
		return false
	}
	for i := 0; i < col.Len(); i++ {
		if col.Value(i) != nil {
			return false
		}
	}
	return true
}
