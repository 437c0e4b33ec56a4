package model

// Record is one row of a flat dataset, keyed by column name.
type Record map[string]string

// Table is an ordered set of records. Columns fixes the output column order.
type Table struct {
	Source  string
	Columns []string
	Rows    []Record
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone copies the record so additive enrichment never touches the source row.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
