package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
)

type (
	// Engine is responsible for sql related read operations.
	Engine struct {
		Storage
		// tables is a cache variable for all tables in the db
		tables []string
		// columns is a cache variable for tables and there columns in the db
		columns sync.Map
		// timeout is the read timeout of a single table
		timeout time.Duration
		// initCommands run once on the session reading table data
		initCommands []string

		mu      sync.Mutex
		session *sql.Conn
		tx      *sql.Tx
	}

	// Storage is the read storage database interface.
	Storage interface {
		// GetStructure returns the SQL used to create a table
		GetStructure(table string) (string, error)
		// GetTables return a list of all database tables
		GetTables() ([]string, error)
		// GetColumns return a list of all columns for a given table
		GetColumns(string) ([]string, error)
		// GetServerInfo describes the server and database being read
		GetServerInfo() (database.ServerInfo, error)
		// QuoteIdentifier returns a quoted instance of a identifier (table, column etc.)
		QuoteIdentifier(string) string
		// Dialect returns the SQL dialect of the database
		Dialect() string
		// TxOptions returns the options of a snapshot transaction, nil when snapshots are not supported
		TxOptions() *sql.TxOptions
		// Conn return the sql.DB connection
		Conn() *sql.DB
		// Close closes the reader resources and releases them.
		Close() error
	}

	// Opts are the engine options.
	Opts struct {
		Timeout      time.Duration
		InitCommands []string
	}

	queryRunner interface {
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	}
)

// New creates a new sql reader engine.
func New(s Storage, opts Opts) *Engine {
	return &Engine{Storage: s, timeout: opts.Timeout, initCommands: opts.InitCommands}
}

// GetTables gets a list of all tables in the database
func (e *Engine) GetTables() ([]string, error) {
	if e.tables == nil {
		tables, err := e.Storage.GetTables()
		if err != nil {
			return nil, err
		}

		e.tables = tables
	}

	return e.tables, nil
}

// GetColumns returns the columns in the specified database table
func (e *Engine) GetColumns(tableName string) ([]string, error) {
	columns, ok := e.columns.Load(tableName)
	if !ok {
		var err error
		columns, err = e.Storage.GetColumns(tableName)
		if err != nil {
			return nil, err
		}

		e.columns.Store(tableName, columns)
	}

	return columns.([]string), nil
}

// BeginSnapshot opens a read-only transaction all following table reads run in.
func (e *Engine) BeginSnapshot(ctx context.Context) error {
	txOpts := e.TxOptions()
	if txOpts == nil {
		log.WithField("dialect", e.Dialect()).Debug("snapshot transactions are not supported, reading without one")
		return nil
	}

	session, err := e.getSession(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tx != nil {
		return stacktrace.NewError("a snapshot transaction is already open")
	}

	tx, err := session.BeginTx(ctx, txOpts)
	if err != nil {
		return stacktrace.Propagate(err, "failed to begin snapshot transaction")
	}
	e.tx = tx

	return nil
}

// ReadTable publishes all rows of a table to rowChan. rowChan is closed when it returns.
func (e *Engine) ReadTable(ctx context.Context, tableName string, rowChan chan<- database.Row, opts reader.ReadTableOpt) error {
	defer close(rowChan)

	logger := log.WithField("table", tableName)
	logger.Debug("reading table data")

	columns, err := e.GetColumns(tableName)
	if err != nil {
		return stacktrace.Propagate(err, "failed to get columns")
	}

	selectList, err := e.selectList(tableName, columns, opts.Hooks)
	if err != nil {
		return err
	}

	querySQL, queryParams, err := e.buildQuery(tableName, selectList, opts).ToSql()
	if err != nil {
		return stacktrace.Propagate(err, "failed to build query for %s", tableName)
	}

	if observer, ok := opts.Hooks.(reader.QueryObserver); ok {
		if err := observer.ObserveQuery(querySQL); err != nil {
			return stacktrace.Propagate(err, "failed to observe query for %s", tableName)
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	runner, err := e.runner(ctx)
	if err != nil {
		return err
	}

	rows, err := runner.QueryContext(ctx, querySQL, queryParams...)
	if err != nil {
		logger.WithError(err).
			WithFields(log.Fields{
				"query":  querySQL,
				"params": queryParams,
			}).Warn("failed to query rows")
		return stacktrace.Propagate(err, "failed to query rows of %s", tableName)
	}

	return e.publishRows(ctx, rows, rowChan, tableName, opts.Hooks)
}

// FormatColumn returns a escaped table+column string
func (e *Engine) FormatColumn(tableName string, columnName string) string {
	return fmt.Sprintf(
		"%s.%s",
		e.QuoteIdentifier(tableName),
		e.QuoteIdentifier(columnName),
	)
}

// Close releases the snapshot transaction, the session and the storage.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx != nil {
		if err := e.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.WithError(err).Warn("failed to release snapshot transaction")
		}
		e.tx = nil
	}

	if e.session != nil {
		if err := e.session.Close(); err != nil {
			log.WithError(err).Warn("failed to release read session")
		}
		e.session = nil
	}

	return e.Storage.Close()
}

func (e *Engine) selectList(tableName string, columns []string, hooks reader.Hooks) ([]string, error) {
	if hooks == nil {
		return e.formatColumns(tableName, columns), nil
	}

	selectList, err := hooks.SelectColumns(columns)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to build select list for %s", tableName)
	}
	if len(selectList) != len(columns) {
		return nil, stacktrace.NewError("select list of %s has %d entries for %d columns", tableName, len(selectList), len(columns))
	}

	return selectList, nil
}

// buildQuery builds the query that will be used to read the table
func (e *Engine) buildQuery(tableName string, selectList []string, opts reader.ReadTableOpt) sq.SelectBuilder {
	query := sq.Select(selectList...).From(e.QuoteIdentifier(tableName))
	for _, r := range opts.Relationships {
		if r.Table == "" {
			r.Table = tableName
		}
		query = query.Join(fmt.Sprintf(
			"%s ON %s.%s = %s.%s",
			r.ReferencedTable,
			r.ReferencedTable,
			r.ReferencedKey,
			r.Table,
			r.ForeignKey,
		))
	}

	if opts.Match != "" {
		query = query.Where(opts.Match)
	}

	sorts := make([]string, 0, len(opts.Sorts))
	for k := range opts.Sorts {
		sorts = append(sorts, k)
	}
	sort.Strings(sorts)
	for _, k := range sorts {
		query = query.OrderBy(fmt.Sprintf("%s %s", k, opts.Sorts[k]))
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	return query
}

func (e *Engine) publishRows(ctx context.Context, rows *sql.Rows, rowChan chan<- database.Row, tableName string, hooks reader.Hooks) error {
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return stacktrace.Propagate(err, "failed to get column types")
	}

	columnCount := len(columnTypes)
	fieldPointers := make([]interface{}, columnCount)

	var published int
	for rows.Next() {
		fields := make([]interface{}, columnCount)
		for i := 0; i < columnCount; i++ {
			fieldPointers[i] = &fields[i]
		}

		if err := rows.Scan(fieldPointers...); err != nil {
			return stacktrace.Propagate(err, "failed to fetch row of %s", tableName)
		}

		row := make(database.Row, columnCount)
		for i, col := range columnTypes {
			value := fields[i]
			if hooks != nil {
				if value, err = hooks.TransformValue(col.Name(), value); err != nil {
					return stacktrace.Propagate(err, "failed to transform %s.%s", tableName, col.Name())
				}
			}

			row[i] = &database.Cell{
				Column: col.Name(),
				Type:   strings.ToUpper(col.DatabaseTypeName()),
				Value:  value,
			}
		}

		select {
		case rowChan <- row:
			published++
		case <-ctx.Done():
			return stacktrace.Propagate(ctx.Err(), "read of %s interrupted", tableName)
		}
	}

	if err := rows.Err(); err != nil {
		return stacktrace.Propagate(err, "failed to iterate rows of %s", tableName)
	}

	log.WithFields(log.Fields{"table": tableName, "rows": published}).Debug("table data read")
	return nil
}

// runner returns the snapshot transaction when one is open, the read session otherwise.
func (e *Engine) runner(ctx context.Context) (queryRunner, error) {
	e.mu.Lock()
	tx := e.tx
	e.mu.Unlock()
	if tx != nil {
		return tx, nil
	}

	return e.getSession(ctx)
}

func (e *Engine) getSession(ctx context.Context) (*sql.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return e.session, nil
	}

	session, err := e.Conn().Conn(ctx)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to open read session")
	}

	for _, command := range e.initCommands {
		if _, err := session.ExecContext(ctx, command); err != nil {
			session.Close()
			return nil, stacktrace.Propagate(err, "init command failed: %s", command)
		}
	}

	e.session = session
	return session, nil
}

func (e *Engine) formatColumns(tableName string, columns []string) []string {
	formatted := make([]string, len(columns))
	for i, c := range columns {
		formatted[i] = e.FormatColumn(tableName, c)
	}

	return formatted
}
