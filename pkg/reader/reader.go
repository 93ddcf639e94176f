package reader

import (
	"context"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/database"
)

// Database dialects reported by readers.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type (
	// Driver is a driver interface used to support multiple drivers
	Driver interface {
		IsSupported(dsn string) bool
		NewConnection(ConnOpts) (Reader, error)
	}

	// ColumnFormatter renders identifiers for a select list.
	ColumnFormatter interface {
		// QuoteIdentifier returns a quoted instance of a identifier (table, column etc.)
		QuoteIdentifier(string) string
		// FormatColumn returns a escaped table+column string
		FormatColumn(table string, column string) string
	}

	// Reader provides an interface to access database stores.
	Reader interface {
		ColumnFormatter
		// GetTables return a list of all database tables
		GetTables() ([]string, error)
		// GetStructure returns the SQL used to create a table
		GetStructure(table string) (string, error)
		// GetColumns return a list of all columns for a given table, in declaration order
		GetColumns(table string) ([]string, error)
		// GetServerInfo describes the server and database being read
		GetServerInfo() (database.ServerInfo, error)
		// Dialect returns the SQL dialect of the database
		Dialect() string
		// BeginSnapshot starts a read-only transaction every following read runs in
		BeginSnapshot(ctx context.Context) error
		// ReadTable publishes the rows of a table to rowChan and closes it
		ReadTable(ctx context.Context, table string, rowChan chan<- database.Row, opts ReadTableOpt) error
		// Close closes the reader resources and releases them.
		Close() error
	}

	// Hooks are the extension points consulted while a table is read.
	Hooks interface {
		// SelectColumns returns the select list entries for the table columns, in the same order.
		SelectColumns(columns []string) ([]string, error)
		// TransformValue returns the value to publish for a fetched cell.
		TransformValue(column string, value interface{}) (interface{}, error)
	}

	// QueryObserver is implemented by hooks that want to see the assembled query
	// before any row of the table is published.
	QueryObserver interface {
		ObserveQuery(query string) error
	}

	// HookProvider creates the hooks of a single table read.
	HookProvider interface {
		ForTable(table string, f ColumnFormatter) Hooks
	}

	// ConnOpts are the options to create a connection
	ConnOpts struct {
		// Driver is the registered driver name, when empty it is detected from the DSN
		Driver          string
		DSN             string
		Timeout         time.Duration
		MaxConnLifetime time.Duration
		MaxConns        int
		MaxIdleConns    int
		// InitCommands are executed once after connecting
		InitCommands []string
	}

	// ReadTableOpt represents the options passed to Reader.ReadTable.
	ReadTableOpt struct {
		// Match is a condition field to dump only certain amount data
		Match string
		// Sorts is the sort condition for the table
		Sorts map[string]string
		// Limit defines a limit of results to be fetched
		Limit uint64
		// Relationships defines joins to reference tables
		Relationships []*RelationshipOpt
		// Hooks rewrite the select list and the fetched values, may be nil
		Hooks Hooks
	}

	// RelationshipOpt represents the relationships options
	RelationshipOpt struct {
		Table           string
		ReferencedTable string
		ReferencedKey   string
		ForeignKey      string
	}
)

// NewReadTableOpt builds read options from a table configuration
func NewReadTableOpt(tableCfg *config.Table) ReadTableOpt {
	relationships := make([]*RelationshipOpt, len(tableCfg.Relationships))
	for i, r := range tableCfg.Relationships {
		relationships[i] = &RelationshipOpt{
			Table:           r.Table,
			ReferencedTable: r.ReferencedTable,
			ReferencedKey:   r.ReferencedKey,
			ForeignKey:      r.ForeignKey,
		}
	}

	return ReadTableOpt{
		Match:         tableCfg.Filter.Match,
		Sorts:         tableCfg.Filter.Sorts,
		Limit:         tableCfg.Filter.Limit,
		Relationships: relationships,
	}
}

// Connect opens a reader with the driver named in opts or, when no name is given,
// the first registered driver supporting the DSN.
func Connect(opts ConnOpts) (Reader, error) {
	if opts.Driver != "" {
		driver, ok := lookup(opts.Driver)
		if !ok {
			return nil, stacktrace.NewError("unsupported database type %q, supported are %v", opts.Driver, Drivers())
		}
		return driver.NewConnection(opts)
	}

	name, ok := Detect(opts.DSN)
	if !ok {
		return nil, stacktrace.NewError("no reader supports the given dsn")
	}

	driver, _ := lookup(name)
	return driver.NewConnection(opts)
}

// Detect returns the name of the first registered driver supporting dsn.
func Detect(dsn string) (string, bool) {
	for _, name := range Drivers() {
		driver, _ := lookup(name)
		if driver.IsSupported(dsn) {
			return name, true
		}
	}

	return "", false
}
