package database

type (
	// Cell is a single fetched column value.
	Cell struct {
		// Column is the result column name.
		Column string
		// Type is the database type name reported by the driver, upper-cased (e.g. VARCHAR, BLOB).
		Type string
		// Value is the scanned value; nil means SQL NULL.
		Value interface{}
	}

	// Row is a fetched row with its cells in select-list order.
	Row []*Cell

	// ServerInfo describes the database a dump is taken from.
	ServerInfo struct {
		Host     string
		Database string
		Version  string
	}
)

// Columns returns the column names of the row, in order.
func (r Row) Columns() []string {
	columns := make([]string, len(r))
	for i, c := range r {
		columns[i] = c.Column
	}

	return columns
}

// Get returns the cell of a column or nil.
func (r Row) Get(column string) *Cell {
	for _, c := range r {
		if c.Column == column {
			return c
		}
	}

	return nil
}
