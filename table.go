package neoschema

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

// Table is tabular input for the bulk importer: an ordered list of column
// names over string-keyed records. Transformations return new tables and
// leave the receiver untouched, so one table can feed several imports.
type Table struct {
	columns []string
	records []map[string]any
}

// NewTableFromRecords builds a table over the given records. With nil
// columns the column list is the sorted union of all record keys. The table
// references the records without copying; importers never modify them.
func NewTableFromRecords(columns []string, records []map[string]any) *Table {
	if columns == nil {
		seen := map[string]bool{}
		for _, rec := range records {
			for k := range rec {
				seen[k] = true
			}
		}
		columns = make([]string, 0, len(seen))
		for k := range seen {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	return &Table{columns: columns, records: records}
}

// ReadTableCSV reads a table from CSV. The first row names the columns;
// every value arrives as a string, to be coerced at import time.
func ReadTableCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, NewValidationError("csv input is empty")
	}
	if err != nil {
		return nil, NewImportError("reading csv header", err)
	}
	var records []map[string]any
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, NewImportError("reading csv row", err)
		}
		rec := make(map[string]any, len(header))
		for i, col := range header {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}
	return &Table{columns: header, records: records}, nil
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.records)
}

// Columns returns a copy of the column names, in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Row returns record i. The map is shared with the table; treat it as
// read-only.
func (t *Table) Row(i int) map[string]any {
	return t.records[i]
}

// Select returns a table keeping only the named columns, in the given
// order.
func (t *Table) Select(columns ...string) (*Table, error) {
	if err := t.requireColumns(columns); err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(columns))
	for _, c := range columns {
		keep[c] = true
	}
	records := make([]map[string]any, len(t.records))
	for i, rec := range t.records {
		out := make(map[string]any, len(columns))
		for k, v := range rec {
			if keep[k] {
				out[k] = v
			}
		}
		records[i] = out
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{columns: cols, records: records}, nil
}

// Drop returns a table without the named columns.
func (t *Table) Drop(columns ...string) (*Table, error) {
	if err := t.requireColumns(columns); err != nil {
		return nil, err
	}
	drop := make(map[string]bool, len(columns))
	for _, c := range columns {
		drop[c] = true
	}
	var cols []string
	for _, c := range t.columns {
		if !drop[c] {
			cols = append(cols, c)
		}
	}
	records := make([]map[string]any, len(t.records))
	for i, rec := range t.records {
		out := make(map[string]any, len(rec))
		for k, v := range rec {
			if !drop[k] {
				out[k] = v
			}
		}
		records[i] = out
	}
	return &Table{columns: cols, records: records}, nil
}

// Rename returns a table with columns renamed per the mapping, old name to
// new name. Renaming onto an existing or repeated column name is an error.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	sources := make([]string, 0, len(mapping))
	for old := range mapping {
		sources = append(sources, old)
	}
	if err := t.requireColumns(sources); err != nil {
		return nil, err
	}

	staying := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		if _, renamed := mapping[c]; !renamed {
			staying[c] = true
		}
	}
	targets := make(map[string]bool, len(mapping))
	for _, target := range mapping {
		if staying[target] || targets[target] {
			return nil, NewValidationError(fmt.Sprintf("rename target column %q collides", target))
		}
		targets[target] = true
	}

	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if target, ok := mapping[c]; ok {
			cols[i] = target
		} else {
			cols[i] = c
		}
	}
	records := make([]map[string]any, len(t.records))
	for i, rec := range t.records {
		out := make(map[string]any, len(rec))
		for k, v := range rec {
			if target, ok := mapping[k]; ok {
				out[target] = v
			} else {
				out[k] = v
			}
		}
		records[i] = out
	}
	return &Table{columns: cols, records: records}, nil
}

func (t *Table) requireColumns(columns []string) error {
	have := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		have[c] = true
	}
	for _, c := range columns {
		if !have[c] {
			return NewValidationError(fmt.Sprintf("column %q is not in the table", c))
		}
	}
	return nil
}
