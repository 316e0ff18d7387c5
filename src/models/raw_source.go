package models

// Raw input formats
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// MRawSource is in-memory raw data handed to the engine.
// An empty Format is auto-detected.
type MRawSource struct {
	Name   string
	Format string
	Data   []byte
}

// MTableRef points at a timestamp column and a value column of an existing
// database table, written as schema.table.time_column.value_column.
type MTableRef struct {
	Schema      string
	Table       string
	TimeColumn  string
	ValueColumn string
}

func (r MTableRef) String() string {
	return r.Schema + "." + r.Table + "." + r.TimeColumn + "." + r.ValueColumn
}
