package mysql

import (
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
)

type driver struct{}

// IsSupported checks if the given dsn connection string is supported.
func (m *driver) IsSupported(dsn string) bool {
	if dsn == "" || strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") {
		return false
	}

	_, err := mysql.ParseDSN(dsn)
	return err == nil
}

// NewConnection creates a new mysql connection and retrieves a new mysql reader.
func (m *driver) NewConnection(opts reader.ConnOpts) (reader.Reader, error) {
	dsnCfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to parse mysql dsn")
	}

	conn, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to open mysql connection")
	}

	conn.SetMaxOpenConns(opts.MaxConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.MaxConnLifetime)

	return engine.New(NewStorage(conn, dsnCfg), engine.Opts{
		Timeout:      opts.Timeout,
		InitCommands: opts.InitCommands,
	}), nil
}

func init() {
	reader.Register("mysql", &driver{})
}
