package postgres

import (
	"database/sql"
	"net/url"

	"github.com/lib/pq"
	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
	"github.com/hellofresh/gdpr-dump/pkg/reader/generic"
)

type storage struct {
	generic.SqlReader

	PgDump

	dsn string
}

// NewStorage creates the postgres read storage.
func NewStorage(conn *sql.DB, dumper PgDump, dsn string) engine.Storage {
	return &storage{
		PgDump: dumper,
		SqlReader: generic.SqlReader{
			Connection:      conn,
			QuoteIdentifier: pq.QuoteIdentifier,
		},
		dsn: dsn,
	}
}

func (s *storage) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (s *storage) Dialect() string {
	return reader.DialectPostgres
}

func (s *storage) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

// GetServerInfo also acts as first query to check for errors.
func (s *storage) GetServerInfo() (database.ServerInfo, error) {
	var info database.ServerInfo
	if u, err := url.Parse(s.dsn); err == nil {
		info.Host = u.Host
	}

	err := s.Connection.QueryRow("SELECT current_database(), current_setting('server_version')").Scan(&info.Database, &info.Version)
	if err != nil {
		return info, stacktrace.Propagate(err, "failed to read server info")
	}

	return info, nil
}

// GetTables gets a list of all tables in the database
func (s *storage) GetTables() ([]string, error) {
	log.Debug("fetching table list")
	rows, err := s.Connection.Query(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name",
	)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, stacktrace.Propagate(err, "failed to list tables")
		}

		tables = append(tables, tableName)
	}

	log.WithField("tables", tables).Debug("fetched table list")
	return tables, rows.Err()
}

// GetColumns returns the columns in the specified database table
func (s *storage) GetColumns(table string) ([]string, error) {
	log.WithField("table", table).Debug("fetching table columns")
	rows, err := s.Connection.Query(
		"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position",
		table,
	)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to read columns of %s", table)
	}
	defer rows.Close()

	columns := []string{}
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, stacktrace.Propagate(err, "failed to read columns of %s", table)
		}

		columns = append(columns, column)
	}

	return columns, rows.Err()
}

// GetStructure returns the schema-only pg_dump of the table
func (s *storage) GetStructure(table string) (string, error) {
	return s.PgDump.GetStructure(s.QuoteIdentifier(table))
}
