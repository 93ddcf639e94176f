package sqlite

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/reader/engine"
)

var extensions = []string{".db", ".sqlite", ".sqlite3"}

type driver struct{}

// IsSupported accepts file: URIs and paths with a sqlite file extension.
func (m *driver) IsSupported(dsn string) bool {
	if strings.HasPrefix(dsn, "file:") {
		return true
	}

	path := strings.ToLower(dsn)
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	return false
}

func (m *driver) NewConnection(opts reader.ConnOpts) (reader.Reader, error) {
	conn, err := sql.Open("sqlite3", opts.DSN)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to open sqlite database")
	}

	conn.SetMaxOpenConns(opts.MaxConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.MaxConnLifetime)

	return engine.New(NewStorage(conn, opts.DSN), engine.Opts{
		Timeout:      opts.Timeout,
		InitCommands: opts.InitCommands,
	}), nil
}

func init() {
	reader.Register("sqlite", &driver{})
}
