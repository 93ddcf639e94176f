package engine

import (
	"context"
	"sync"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/dumper"
	"github.com/hellofresh/gdpr-dump/pkg/progress"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
)

type (
	// Engine is the engine which dispatches and orchestrates a dump.
	Engine struct {
		reader reader.Reader
		dumper dumper.Dumper
		opts   Opts

		mu       sync.Mutex
		sections map[string]dumper.TableDumper
	}

	// Opts select what is dumped.
	Opts struct {
		// Tables are the per table definitions of the configuration file
		Tables config.Tables
		// IncludeTables restricts the dump to the given tables, all tables when empty
		IncludeTables []string
		// ExcludeTables are left out of the dump
		ExcludeTables []string
		// Where is a condition applied to every table
		Where             string
		NoData            bool
		NoCreateInfo      bool
		SingleTransaction bool
		// Progress creates the progress bar of a table, no bars when nil
		Progress progress.Builder
	}
)

// New creates a new engine given the reader and dumper.
func New(rdr reader.Reader, d dumper.Dumper, opts Opts) *Engine {
	if opts.Progress == nil {
		opts.Progress = progress.Noop
	}

	return &Engine{
		reader:   rdr,
		dumper:   d,
		opts:     opts,
		sections: make(map[string]dumper.TableDumper),
	}
}

// Dump executes the dump process. hooks may be nil, then every value is dumped as read.
func (e *Engine) Dump(ctx context.Context, hooks reader.HookProvider) error {
	if e.opts.SingleTransaction {
		if err := e.reader.BeginSnapshot(ctx); err != nil {
			return stacktrace.Propagate(err, "failed to begin snapshot")
		}
	}

	info, err := e.reader.GetServerInfo()
	if err != nil {
		return stacktrace.Propagate(err, "failed to get server info")
	}
	if err := e.dumper.DumpHeader(info); err != nil {
		return err
	}

	tables, err := e.selectTables()
	if err != nil {
		return err
	}

	for _, table := range tables {
		if err := e.dumpTable(ctx, table, hooks); err != nil {
			return err
		}
	}

	return e.dumper.DumpFooter()
}

// Comment adds text to the section of a table being dumped.
func (e *Engine) Comment(table string, text string) error {
	e.mu.Lock()
	section, ok := e.sections[table]
	e.mu.Unlock()

	if !ok {
		return stacktrace.NewError("table %s is not being dumped", table)
	}

	return section.Comment(text)
}

// selectTables returns the tables to dump in reader order, or in the given order when
// tables are included explicitly.
func (e *Engine) selectTables() ([]string, error) {
	all, err := e.reader.GetTables()
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to get tables")
	}

	tables := all
	if len(e.opts.IncludeTables) > 0 {
		known := make(map[string]bool, len(all))
		for _, t := range all {
			known[t] = true
		}

		tables = make([]string, 0, len(e.opts.IncludeTables))
		for _, t := range e.opts.IncludeTables {
			if !known[t] {
				return nil, stacktrace.NewError("couldn't find table %s", t)
			}
			tables = append(tables, t)
		}
	}

	excluded := make(map[string]bool, len(e.opts.ExcludeTables))
	for _, t := range e.opts.ExcludeTables {
		excluded[t] = true
	}

	selected := make([]string, 0, len(tables))
	for _, t := range tables {
		if excluded[t] {
			log.WithField("table", t).Debug("table is ignored")
			continue
		}
		selected = append(selected, t)
	}

	return selected, nil
}

// dumpTable writes the structure and data of a table. The section only reaches the
// output when the whole table succeeded.
func (e *Engine) dumpTable(ctx context.Context, table string, hooks reader.HookProvider) error {
	logger := log.WithField("table", table)

	tableCfg := e.opts.Tables.FindByName(table)
	withData := !e.opts.NoData && (tableCfg == nil || !tableCfg.IgnoreData)
	if e.opts.NoCreateInfo && !withData {
		logger.Debug("nothing to dump")
		return nil
	}

	section := e.beginTable(table)
	defer e.endTable(table)

	if err := e.fillSection(ctx, section, table, tableCfg, withData, hooks); err != nil {
		section.Discard()
		logger.WithError(err).Debug("table discarded")
		return err
	}

	if err := section.Commit(); err != nil {
		return stacktrace.Propagate(err, "failed to write %s", table)
	}
	logger.Debug("table was dumped")

	return nil
}

func (e *Engine) fillSection(ctx context.Context, section dumper.TableDumper, table string, tableCfg *config.Table, withData bool, hooks reader.HookProvider) error {
	if !e.opts.NoCreateInfo {
		stmt, err := e.reader.GetStructure(table)
		if err != nil {
			return stacktrace.Propagate(err, "failed to get structure of %s", table)
		}
		if err := section.DumpStructure(stmt); err != nil {
			return stacktrace.Propagate(err, "failed to dump structure of %s", table)
		}
	}

	if !withData {
		log.WithField("table", table).Debug("ignoring data to dump")
		return nil
	}

	if err := e.dumpData(ctx, section, table, tableCfg, hooks); err != nil {
		return stacktrace.Propagate(err, "failed to dump data of %s", table)
	}

	return nil
}

// dumpData streams the rows of a table into its section.
func (e *Engine) dumpData(ctx context.Context, section dumper.TableDumper, table string, tableCfg *config.Table, hooks reader.HookProvider) error {
	var opts reader.ReadTableOpt
	if tableCfg != nil {
		opts = reader.NewReadTableOpt(tableCfg)
	}
	opts.Match = combineConditions(e.opts.Where, opts.Match)
	if hooks != nil {
		opts.Hooks = hooks.ForTable(table, e.reader)
	}

	bar := e.opts.Progress(table)
	readChan := make(chan database.Row)
	rowChan := make(chan database.Row)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.reader.ReadTable(gctx, table, readChan, opts)
	})
	g.Go(func() error {
		return countRows(gctx, readChan, rowChan, bar)
	})
	g.Go(func() error {
		return section.DumpRows(gctx, rowChan)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	if err := bar.Finish(); err != nil {
		log.WithError(err).Debug("failed to finish progress bar")
	}

	return nil
}

func (e *Engine) beginTable(table string) dumper.TableDumper {
	section := e.dumper.BeginTable(table)

	e.mu.Lock()
	e.sections[table] = section
	e.mu.Unlock()

	return section
}

func (e *Engine) endTable(table string) {
	e.mu.Lock()
	delete(e.sections, table)
	e.mu.Unlock()
}

// countRows forwards rows from in to out, advancing bar. out is closed when in is.
func countRows(ctx context.Context, in <-chan database.Row, out chan<- database.Row, bar progress.Bar) error {
	defer close(out)

	for row := range in {
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := bar.Add(1); err != nil {
			log.WithError(err).Debug("failed to render progress bar")
		}
	}

	return nil
}

func combineConditions(where string, match string) string {
	switch {
	case where == "":
		return match
	case match == "":
		return where
	default:
		return "(" + where + ") AND (" + match + ")"
	}
}
