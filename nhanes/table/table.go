// Package table holds the column-oriented row table produced by the XPORT
// reader and merged by the NHANES loader.
package table

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind is the storage type of a column.
type Kind uint8

const (
	Numeric Kind = iota + 1
	Character
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Character:
		return "character"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrDuplicateColumn = errors.New("duplicate column")
	ErrLengthMismatch  = errors.New("column length does not match table")
)

// Column is a named vector of numeric or character values. Missing[i]
// marks cell i as absent whatever the stored value.
type Column struct {
	Name    string
	Label   string
	Kind    Kind
	Numbers []float64
	Strings []string
	Missing []bool
}

// NewNumeric creates a numeric column. A nil missing slice means no cell is missing.
func NewNumeric(name string, values []float64, missing []bool) *Column {
	if missing == nil {
		missing = make([]bool, len(values))
	}
	return &Column{Name: name, Kind: Numeric, Numbers: values, Missing: missing}
}

// NewCharacter creates a character column with no missing cells.
func NewCharacter(name string, values []string) *Column {
	return &Column{Name: name, Kind: Character, Strings: values, Missing: make([]bool, len(values))}
}

// Len returns the number of cells in the column
func (c *Column) Len() int {
	if c.Kind == Character {
		return len(c.Strings)
	}
	return len(c.Numbers)
}

// Value returns the cell at row i as float64 or string, or nil when missing.
func (c *Column) Value(i int) any {
	if c.Missing[i] {
		return nil
	}
	if c.Kind == Character {
		return c.Strings[i]
	}
	return c.Numbers[i]
}

// Text renders the cell at row i; missing cells render empty.
func (c *Column) Text(i int) string {
	if c.Missing[i] {
		return ""
	}
	if c.Kind == Character {
		return c.Strings[i]
	}
	return strconv.FormatFloat(c.Numbers[i], 'g', -1, 64)
}

func (c *Column) appendMissing(n int) {
	for range n {
		if c.Kind == Character {
			c.Strings = append(c.Strings, "")
		} else {
			c.Numbers = append(c.Numbers, 0)
		}
		c.Missing = append(c.Missing, true)
	}
}

func (c *Column) appendFrom(src *Column) {
	switch {
	case c.Kind == src.Kind && c.Kind == Character:
		c.Strings = append(c.Strings, src.Strings...)
	case c.Kind == src.Kind:
		c.Numbers = append(c.Numbers, src.Numbers...)
	default:
		// numeric promoted to character
		for i := range src.Numbers {
			c.Strings = append(c.Strings, src.Text(i))
		}
	}
	c.Missing = append(c.Missing, src.Missing...)
}

// Table is an ordered set of equally long columns.
type Table struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New returns an empty table
func New() *Table {
	return &Table{index: make(map[string]int)}
}

// AddColumn appends c. The first column fixes the row count.
func (t *Table) AddColumn(c *Column) error {
	if _, exists := t.index[c.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
	}
	if len(c.Missing) != c.Len() {
		return fmt.Errorf("%w: %s has %d values and %d missing flags", ErrLengthMismatch, c.Name, c.Len(), len(c.Missing))
	}
	if len(t.columns) == 0 {
		t.rows = c.Len()
	} else if c.Len() != t.rows {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.Name, c.Len(), t.rows)
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// SetConstant sets (or replaces) a numeric column holding v on every row.
func (t *Table) SetConstant(name string, v float64) {
	values := make([]float64, t.rows)
	for i := range values {
		values[i] = v
	}
	col := NewNumeric(name, values, nil)
	if i, exists := t.index[name]; exists {
		col.Label = t.columns[i].Label
		t.columns[i] = col
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, col)
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.columns[i]
	}
	return nil
}

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Rows() int { return t.rows }
func (t *Table) Cols() int { return len(t.columns) }

// Shape returns rows and columns, in that order.
func (t *Table) Shape() (int, int) {
	return t.rows, len(t.columns)
}

// Row returns row i keyed by column name, with nil for missing cells.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		row[c.Name] = c.Value(i)
	}
	return row
}

// Record returns row i as text in column order.
func (t *Table) Record(i int) []string {
	record := make([]string, len(t.columns))
	for j, c := range t.columns {
		record[j] = c.Text(i)
	}
	return record
}
