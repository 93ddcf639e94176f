package mysql

import (
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
	"github.com/hellofresh/gdpr-dump/pkg/reader/generic"
)

type storage struct {
	generic.SqlReader

	cfg *mysql.Config
}

// NewStorage creates the mysql read storage.
func NewStorage(conn *sql.DB, cfg *mysql.Config) engine.Storage {
	return &storage{
		SqlReader: generic.SqlReader{
			Connection:      conn,
			QuoteIdentifier: QuoteIdentifier,
		},
		cfg: cfg,
	}
}

// QuoteIdentifier quotes a mysql identifier with backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.Replace(name, "`", "``", -1) + "`"
}

// QuoteIdentifier returns a quoted instance of a identifier (table, column etc.)
func (s *storage) QuoteIdentifier(name string) string {
	return QuoteIdentifier(name)
}

func (s *storage) Dialect() string {
	return reader.DialectMySQL
}

func (s *storage) TxOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
}

// GetServerInfo also acts as first query to check for errors.
func (s *storage) GetServerInfo() (database.ServerInfo, error) {
	info := database.ServerInfo{Host: s.cfg.Addr}

	var db sql.NullString
	err := s.Connection.QueryRow("SELECT @@hostname, DATABASE(), VERSION()").Scan(&info.Host, &db, &info.Version)
	if err != nil {
		return info, stacktrace.Propagate(err, "failed to read server info")
	}
	info.Database = db.String

	return info, nil
}

// GetTables gets a list of all tables in the database
func (s *storage) GetTables() ([]string, error) {
	log.Debug("fetching table list")

	rows, err := s.Connection.Query("SHOW FULL TABLES")
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var tableName, tableType string
		if err := rows.Scan(&tableName, &tableType); err != nil {
			return nil, stacktrace.Propagate(err, "failed to list tables")
		}
		if tableType == "BASE TABLE" {
			tables = append(tables, tableName)
		}
	}

	log.WithField("tables", tables).Debug("fetched table list")
	return tables, rows.Err()
}

// GetStructure returns the SQL used to create the table
func (s *storage) GetStructure(table string) (string, error) {
	var stmtTableName, tableStmt string
	err := s.Connection.QueryRow("SHOW CREATE TABLE " + s.QuoteIdentifier(table)).Scan(&stmtTableName, &tableStmt)
	if err != nil {
		return "", stacktrace.Propagate(err, "failed to read structure of %s", table)
	}

	return tableStmt, nil
}
