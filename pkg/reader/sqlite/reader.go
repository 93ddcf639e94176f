package sqlite

import (
	"database/sql"
	"strings"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
	"github.com/hellofresh/gdpr-dump/pkg/reader/generic"
)

type storage struct {
	generic.SqlReader

	dsn string
}

// NewStorage creates the sqlite read storage.
func NewStorage(conn *sql.DB, dsn string) engine.Storage {
	return &storage{
		SqlReader: generic.SqlReader{
			Connection:      conn,
			QuoteIdentifier: QuoteIdentifier,
		},
		dsn: dsn,
	}
}

// QuoteIdentifier quotes a sqlite identifier with double quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}

func (s *storage) QuoteIdentifier(name string) string {
	return QuoteIdentifier(name)
}

func (s *storage) Dialect() string {
	return reader.DialectSQLite
}

// TxOptions returns nil, a sqlite file is read without a snapshot transaction.
func (s *storage) TxOptions() *sql.TxOptions {
	return nil
}

func (s *storage) GetServerInfo() (database.ServerInfo, error) {
	info := database.ServerInfo{Host: "localhost", Database: strings.TrimPrefix(s.dsn, "file:")}
	if i := strings.Index(info.Database, "?"); i >= 0 {
		info.Database = info.Database[:i]
	}

	if err := s.Connection.QueryRow("SELECT sqlite_version()").Scan(&info.Version); err != nil {
		return info, stacktrace.Propagate(err, "failed to read server info")
	}

	return info, nil
}

// GetTables gets a list of all tables in the database
func (s *storage) GetTables() ([]string, error) {
	log.Debug("fetching table list")

	rows, err := s.Connection.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
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

// GetStructure returns the SQL used to create the table
func (s *storage) GetStructure(table string) (string, error) {
	var stmt string
	err := s.Connection.QueryRow("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&stmt)
	if err != nil {
		return "", stacktrace.Propagate(err, "failed to read structure of %s", table)
	}

	return stmt, nil
}
