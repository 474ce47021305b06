// Package table implements a small column-oriented table used to collect,
// concatenate and aggregate per-run study parameters. A column is either
// numeric (float64) or string; group keys are always string columns, so
// vector-valued parameters have to be stringified before grouping.
package table

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// keySep separates key column values in the internal group key. It may not
// appear in stringified parameter values.
const keySep = "\x1f"

type column struct {
	num []float64
	str []string // nil for a numeric column
}

func (c *column) isStr() bool {
	return c.str != nil
}

func (c *column) length() int {
	if c.isStr() {
		return len(c.str)
	}
	return len(c.num)
}

// Table is an ordered collection of equal-length named columns.
type Table struct {
	names []string
	cols  map[string]*column
}

// New creates an empty table.
func New() *Table {
	return &Table{cols: make(map[string]*column)}
}

// NRows returns the number of rows.
func (t *Table) NRows() int {
	if len(t.names) == 0 {
		return 0
	}
	return t.cols[t.names[0]].length()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

// Has returns true if a column is present.
func (t *Table) Has(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// IsString returns true if the column exists and holds strings.
func (t *Table) IsString(name string) bool {
	c, ok := t.cols[name]
	return ok && c.isStr()
}

func (t *Table) add(name string, c *column) error {
	if _, ok := t.cols[name]; ok {
		return fmt.Errorf("table: duplicate column %q", name)
	}
	if len(t.names) > 0 && c.length() != t.NRows() {
		return fmt.Errorf("table: column %q has %d rows, table has %d",
			name, c.length(), t.NRows())
	}
	t.names = append(t.names, name)
	t.cols[name] = c
	return nil
}

// AddNum appends a numeric column. The slice is not copied.
func (t *Table) AddNum(name string, vals []float64) error {
	return t.add(name, &column{num: vals})
}

// AddStr appends a string column. The slice is not copied.
func (t *Table) AddStr(name string, vals []string) error {
	return t.add(name, &column{str: vals})
}

// SetNum replaces the values of an existing numeric column, or appends a new
// numeric column if the name is not taken.
func (t *Table) SetNum(name string, vals []float64) error {
	c, ok := t.cols[name]
	if !ok {
		return t.AddNum(name, vals)
	}
	if c.isStr() {
		return fmt.Errorf("table: column %q is not numeric", name)
	}
	if len(t.names) > 1 && len(vals) != t.NRows() {
		return fmt.Errorf("table: column %q has %d rows, table has %d",
			name, len(vals), t.NRows())
	}
	c.num = vals
	return nil
}

// Num returns the values of a numeric column. The slice is shared with the
// table, callers must not modify it.
func (t *Table) Num(name string) ([]float64, error) {
	c, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("table: no column %q", name)
	}
	if c.isStr() {
		return nil, fmt.Errorf("table: column %q is not numeric", name)
	}
	return c.num, nil
}

// Str returns the values of a string column. The slice is shared with the
// table, callers must not modify it.
func (t *Table) Str(name string) ([]string, error) {
	c, ok := t.cols[name]
	if !ok {
		return nil, fmt.Errorf("table: no column %q", name)
	}
	if !c.isStr() {
		return nil, fmt.Errorf("table: column %q is not a string column", name)
	}
	return c.str, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	n := New()
	for _, name := range t.names {
		c := t.cols[name]
		if c.isStr() {
			vals := make([]string, len(c.str))
			copy(vals, c.str)
			n.AddStr(name, vals)
		} else {
			vals := make([]float64, len(c.num))
			copy(vals, c.num)
			n.AddNum(name, vals)
		}
	}
	return n
}

// FormatFloat is the canonical value-to-string conversion used for grouping.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Stringify converts the named numeric columns to string columns in place.
// Columns that already hold strings are left alone.
func (t *Table) Stringify(names ...string) error {
	for _, name := range names {
		c, ok := t.cols[name]
		if !ok {
			return fmt.Errorf("table: no column %q", name)
		}
		if c.isStr() {
			continue
		}
		vals := make([]string, len(c.num))
		for i, v := range c.num {
			vals[i] = FormatFloat(v)
		}
		c.str = vals
		c.num = nil
	}
	return nil
}

// Concat concatenates tables row-wise. Columns are matched by name; the
// result holds the union of all columns in first-seen order, with missing
// numeric values filled with NaN and missing string values with "".
// Concatenating zero tables is an error.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("table: no tables to concatenate")
	}
	var names []string
	isStr := make(map[string]bool)
	seen := make(map[string]bool)
	total := 0
	for _, t := range tables {
		total += t.NRows()
		for _, name := range t.names {
			s := t.cols[name].isStr()
			if !seen[name] {
				seen[name] = true
				isStr[name] = s
				names = append(names, name)
			} else if isStr[name] != s {
				return nil, fmt.Errorf("table: column %q is both numeric and string", name)
			}
		}
	}

	out := New()
	for _, name := range names {
		if isStr[name] {
			vals := make([]string, 0, total)
			for _, t := range tables {
				if c, ok := t.cols[name]; ok {
					vals = append(vals, c.str...)
				} else {
					for i := 0; i < t.NRows(); i++ {
						vals = append(vals, "")
					}
				}
			}
			out.AddStr(name, vals)
		} else {
			vals := make([]float64, 0, total)
			for _, t := range tables {
				if c, ok := t.cols[name]; ok {
					vals = append(vals, c.num...)
				} else {
					for i := 0; i < t.NRows(); i++ {
						vals = append(vals, math.NaN())
					}
				}
			}
			out.AddNum(name, vals)
		}
	}
	return out, nil
}

// FilterEq returns the rows whose string column name equals val.
func (t *Table) FilterEq(name, val string) (*Table, error) {
	col, err := t.Str(name)
	if err != nil {
		return nil, err
	}
	var rows []int
	for i, v := range col {
		if v == val {
			rows = append(rows, i)
		}
	}
	out := New()
	for _, cn := range t.names {
		c := t.cols[cn]
		if c.isStr() {
			vals := make([]string, len(rows))
			for i, r := range rows {
				vals[i] = c.str[r]
			}
			out.AddStr(cn, vals)
		} else {
			vals := make([]float64, len(rows))
			for i, r := range rows {
				vals[i] = c.num[r]
			}
			out.AddNum(cn, vals)
		}
	}
	return out, nil
}

// GroupSum groups rows by the given string key columns and sums every numeric
// column within each group, skipping NaN values (a group with no valid values
// sums to 0). Non-key string columns are dropped. Groups are emitted in
// sorted key order, with the key columns restored as regular columns.
func (t *Table) GroupSum(keys ...string) (*Table, error) {
	return t.groupBy(keys, false)
}

// GroupMean is GroupSum with means instead of sums. A group with no valid
// values for a column yields NaN.
func (t *Table) GroupMean(keys ...string) (*Table, error) {
	return t.groupBy(keys, true)
}

func (t *Table) groupBy(keys []string, mean bool) (*Table, error) {
	keyCols := make([][]string, len(keys))
	for i, k := range keys {
		col, err := t.Str(k)
		if err != nil {
			return nil, fmt.Errorf("table: group key: %v", err)
		}
		keyCols[i] = col
	}
	isKey := make(map[string]bool)
	for _, k := range keys {
		isKey[k] = true
	}
	var numNames []string
	for _, name := range t.names {
		if !isKey[name] && !t.cols[name].isStr() {
			numNames = append(numNames, name)
		}
	}

	type group struct {
		sum   []float64
		count []int
	}
	groups := make(map[string]*group)
	var order []string
	for r := 0; r < t.NRows(); r++ {
		parts := make([]string, len(keys))
		for i := range keys {
			parts[i] = keyCols[i][r]
		}
		key := strings.Join(parts, keySep)
		g, ok := groups[key]
		if !ok {
			g = &group{
				sum:   make([]float64, len(numNames)),
				count: make([]int, len(numNames)),
			}
			groups[key] = g
			order = append(order, key)
		}
		for i, name := range numNames {
			v := t.cols[name].num[r]
			if math.IsNaN(v) {
				continue
			}
			g.sum[i] += v
			g.count[i]++
		}
	}
	sort.Strings(order)

	out := New()
	for i, k := range keys {
		vals := make([]string, len(order))
		for j, key := range order {
			vals[j] = strings.Split(key, keySep)[i]
		}
		out.AddStr(k, vals)
	}
	for i, name := range numNames {
		vals := make([]float64, len(order))
		for j, key := range order {
			g := groups[key]
			switch {
			case mean && g.count[i] == 0:
				vals[j] = math.NaN()
			case mean:
				vals[j] = g.sum[i] / float64(g.count[i])
			default:
				vals[j] = g.sum[i]
			}
		}
		out.AddNum(name, vals)
	}
	return out, nil
}
