package nhanes

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/giygas/nhanes-api/logging"
)

const (
	// BaseURL is where the CDC publishes the per-cycle NHANES files.
	BaseURL = "https://wwwn.cdc.gov/Nchs/Nhanes"

	// DrugsURL is the prescription drug lookup file, published once for all cycles.
	DrugsURL = "https://wwwn.cdc.gov/Nchs/Nhanes/1999-2000/RXQ_DRUG.xpt"
)

var (
	ErrNoCycle        = errors.New("no NHANES data for this year")
	ErrAmbiguousCycle = errors.New("year matches more than one NHANES cycle")
)

// Cycle is one survey wave: a label such as "2017-2018" covering the closed
// year range [First, Last], and the suffix its file names carry.
type Cycle struct {
	Label string
	Code  string
	First int
	Last  int
}

// Contains reports whether year falls inside the cycle.
func (c Cycle) Contains(year int) bool {
	return c.First <= year && year <= c.Last
}

func newCycle(label, code string) Cycle {
	first, last, ok := strings.Cut(label, "-")
	if !ok {
		panic("nhanes: malformed cycle label " + label)
	}
	c := Cycle{Label: label, Code: code}
	var err1, err2 error
	c.First, err1 = strconv.Atoi(first)
	c.Last, err2 = strconv.Atoi(last)
	if err1 != nil || err2 != nil || c.First > c.Last {
		panic("nhanes: malformed cycle label " + label)
	}
	return c
}

var cycles = []Cycle{
	newCycle("1999-2000", ""),
	newCycle("2001-2002", "_B"),
	newCycle("2003-2004", "_C"),
	newCycle("2005-2006", "_D"),
	newCycle("2007-2008", "_E"),
	newCycle("2009-2010", "_F"),
	newCycle("2011-2012", "_G"),
	newCycle("2013-2014", "_H"),
	newCycle("2015-2016", "_I"),
	newCycle("2017-2018", "_J"),
	newCycle("2019-2020", "_K"),
}

// Cycles returns a copy of the known survey cycles in chronological order.
func Cycles() []Cycle {
	return slices.Clone(cycles)
}

// CycleFor returns the single cycle containing year. Matching is by year
// range, not by text, so a partial year such as 17 matches no cycle.
func CycleFor(year int) (Cycle, error) {
	var matches []Cycle
	for _, c := range cycles {
		if c.Contains(year) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return Cycle{}, fmt.Errorf("%w: %d", ErrNoCycle, year)
	case 1:
		return matches[0], nil
	default:
		return Cycle{}, fmt.Errorf("%w: %d", ErrAmbiguousCycle, year)
	}
}

// URLBuilder maps a dataset and year to the location of its file, without
// the file extension.
type URLBuilder struct {
	baseURL string
	logger  *slog.Logger
}

// NewURLBuilder creates a builder rooted at baseURL (BaseURL when empty).
// A nil logger falls back to the application logger.
func NewURLBuilder(baseURL string, logger *slog.Logger) *URLBuilder {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if logger == nil {
		logger = logging.Logger()
	}
	return &URLBuilder{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Build returns {base}/{cycle label}/{DATASET}{cycle code}.
func (b *URLBuilder) Build(dataset string, year int) (string, error) {
	c, err := CycleFor(year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s%s", b.baseURL, c.Label, strings.ToUpper(dataset), c.Code), nil
}

// URL is Build for callers that carry on after a failure: the error is
// logged and the location is empty.
func (b *URLBuilder) URL(dataset string, year int) string {
	location, err := b.Build(dataset, year)
	if err != nil {
		b.logger.Error("No NHANES data for this year", "dataset", dataset, "year", year, "error", err)
		return ""
	}
	return location
}
