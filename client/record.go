package client

// Record is one result row as an ordered mapping from column name to value.
// Column order follows the engine's output; a duplicate column name keeps
// its first position but takes the value from its last occurrence, matching
// how the engine's output order collapses duplicates.
type Record struct {
	columns []string
	values  map[string]any
}

func newRecord(columns []string, row []any) Record {
	r := Record{
		columns: make([]string, 0, len(columns)),
		values:  make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		if i >= len(row) {
			break
		}
		if _, seen := r.values[col]; !seen {
			r.columns = append(r.columns, col)
		}
		r.values[col] = row[i]
	}
	return r
}

// Columns returns the record's column names in order.
func (r Record) Columns() []string {
	return r.columns
}

// Get returns the value for the named column and whether it exists.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Len returns the number of distinct columns.
func (r Record) Len() int {
	return len(r.columns)
}
