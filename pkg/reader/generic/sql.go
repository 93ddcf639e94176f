package generic

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/palantir/stacktrace"
)

// SqlReader is a base class for sql related readers
type SqlReader struct {
	Connection *sql.DB
	// QuoteIdentifier returns a quoted instance of a identifier (table, column etc.)
	QuoteIdentifier func(string) string
}

// Conn return the sql.DB connection
func (s *SqlReader) Conn() *sql.DB {
	return s.Connection
}

// GetColumns returns the columns in the specified database table
func (s *SqlReader) GetColumns(table string) ([]string, error) {
	rows, err := sq.Select("*").From(s.QuoteIdentifier(table)).Limit(0).RunWith(s.Connection).Query()
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to read columns of %s", table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to read columns of %s", table)
	}

	return columns, nil
}

// Close closes the connection.
func (s *SqlReader) Close() error {
	return s.Connection.Close()
}
