package table

import "errors"

// ErrNoTables is returned by Concat when there is nothing to concatenate.
var ErrNoTables = errors.New("no tables to concatenate")

// Concat stacks tables vertically, aligning columns by name. The result has
// the union of all columns in order of first appearance; rows from a table
// lacking a column get missing cells. A column stored as numeric in one table
// and character in another becomes character.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, ErrNoTables
	}

	var order []*Column
	seen := make(map[string]*Column)
	total := 0
	for _, t := range tables {
		total += t.rows
		for _, c := range t.columns {
			u, ok := seen[c.Name]
			if !ok {
				u = &Column{Name: c.Name, Label: c.Label, Kind: c.Kind}
				seen[c.Name] = u
				order = append(order, u)
				continue
			}
			if u.Kind != c.Kind {
				u.Kind = Character
			}
			if u.Label == "" {
				u.Label = c.Label
			}
		}
	}

	out := New()
	for _, u := range order {
		u.Missing = make([]bool, 0, total)
		if u.Kind == Character {
			u.Strings = make([]string, 0, total)
		} else {
			u.Numbers = make([]float64, 0, total)
		}
		for _, t := range tables {
			if src := t.Column(u.Name); src != nil {
				u.appendFrom(src)
			} else {
				u.appendMissing(t.rows)
			}
		}
		out.index[u.Name] = len(out.columns)
		out.columns = append(out.columns, u)
	}
	out.rows = total

	return out, nil
}
