package postgres

import (
	"database/sql"
	"strings"

	_ "github.com/lib/pq"
	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
)

type driver struct{}

func (m *driver) IsSupported(dsn string) bool {
	dsn = strings.ToLower(dsn)
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (m *driver) NewConnection(opts reader.ConnOpts) (reader.Reader, error) {
	conn, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to open postgres connection")
	}

	conn.SetMaxOpenConns(opts.MaxConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.MaxConnLifetime)

	return engine.New(NewStorage(conn, NewPgDump(opts.DSN), opts.DSN), engine.Opts{
		Timeout:      opts.Timeout,
		InitCommands: opts.InitCommands,
	}), nil
}

func init() {
	reader.Register("pgsql", &driver{})
}
