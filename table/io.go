package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// WriteCSV writes the table with a header row. Numeric values use the same
// formatting as Stringify.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.names); err != nil {
		return err
	}
	rec := make([]string, len(t.names))
	for r := 0; r < t.NRows(); r++ {
		for i, name := range t.names {
			c := t.cols[name]
			if c.isStr() {
				rec[i] = c.str[r]
			} else {
				rec[i] = FormatFloat(c.num[r])
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// wireColumn is the JSON form of a single column.
type wireColumn struct {
	Name string    `json:"name"`
	Num  []float64 `json:"num"`
	Str  []string  `json:"str"`
}

// MarshalJSON encodes the table as an ordered column list.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := make([]wireColumn, 0, len(t.names))
	for _, name := range t.names {
		c := t.cols[name]
		wc := wireColumn{Name: name}
		if c.isStr() {
			wc.Str = c.str
			if wc.Str == nil {
				wc.Str = []string{}
			}
		} else {
			wc.Num = c.num
			if wc.Num == nil {
				wc.Num = []float64{}
			}
		}
		cols = append(cols, wc)
	}
	return json.Marshal(cols)
}

// UnmarshalJSON decodes a table encoded by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var cols []wireColumn
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	*t = *New()
	for _, wc := range cols {
		var err error
		if wc.Str != nil {
			err = t.AddStr(wc.Name, wc.Str)
		} else {
			err = t.AddNum(wc.Name, wc.Num)
		}
		if err != nil {
			return fmt.Errorf("table: decoding column %q: %v", wc.Name, err)
		}
	}
	return nil
}
