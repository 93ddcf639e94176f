package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hellofresh/gdpr-dump/pkg/anonymiser"
	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/dsn"
	"github.com/hellofresh/gdpr-dump/pkg/dumper/engine"
	"github.com/hellofresh/gdpr-dump/pkg/dumper/text"
	"github.com/hellofresh/gdpr-dump/pkg/progress"
	"github.com/hellofresh/gdpr-dump/pkg/reader"

	// imports readers
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/mysql"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/postgres"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/sqlite"
)

// Read pool settings. One connection is pinned for the table reads, the others serve
// metadata queries.
const (
	readMaxConns     = 5
	readMaxIdleConns = 2
)

// commentFunc adapts a function to anonymiser.CommentWriter.
type commentFunc func(table string, text string) error

func (f commentFunc) Comment(table string, text string) error {
	return f(table, text)
}

// NewMySQLDumpCmd creates the mysqldump command
func NewMySQLDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mysqldump [db-name] [include-tables...]",
		Short: "Dumps a database with the gdpr-replacements applied",
		Example: `gdpr-dump mysqldump shop users orders --user root --host db \
	--gdpr-replacements-file gdpr.json --result-file shop.sql.gz --compress Gzip`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return RunMySQLDump(ctx, c.Flags(), args)
		},
	}

	f := cmd.Flags()
	f.StringArray("ignore-table", nil, "Do not dump the specified table, given as database.table. Repeat for several tables")
	f.StringP("result-file", "r", "", "Direct output to a given file instead of stdout")
	f.StringP("user", "u", "", "User for login")
	f.StringP("password", "p", "", "Password to use when connecting to the server")
	f.String("host", "", "Connect to host")
	f.IntP("port", "P", 0, "Port number to use for connection")
	f.StringP("socket", "S", "", "The socket file to use for connection")
	f.String("db-type", "mysql", "Database type: mysql, pgsql or sqlite")
	f.String("dsn", "", "Full data source name, overrides the connection options. The database type is detected from it")
	f.String("defaults-file", "", "Read default options from the given file")
	f.String("compress", text.CompressNone, "Compress the output: None, Gzip or Zstd")
	f.StringArray("init-commands", nil, "SQL commands executed after connecting. Repeat for several commands")
	f.BoolP("no-data", "d", false, "No row information")
	f.Bool("reset-auto-increment", false, "Removes the AUTO_INCREMENT option from table definitions")
	f.Bool("add-drop-table", false, "Add a DROP TABLE before each create")
	f.Bool("add-locks", true, "Add locks around INSERT statements")
	f.Bool("complete-insert", false, "Use complete insert statements")
	f.String("default-character-set", "utf8mb4", "Set the default character set")
	f.BoolP("disable-keys", "K", true, "Wrap the inserts of a table in DISABLE KEYS/ENABLE KEYS")
	f.BoolP("extended-insert", "e", true, "Use multiple-row INSERT syntax")
	f.Bool("hex-blob", true, "Dump binary strings in hexadecimal format")
	f.Int("net_buffer_length", 1000000, "The maximum length of an extended INSERT statement")
	f.Bool("no-autocommit", true, "Wrap the inserts of a table in a transaction")
	f.BoolP("no-create-info", "t", false, "Do not write CREATE TABLE statements")
	f.Bool("single-transaction", true, "Read every table in one snapshot transaction")
	f.Bool("skip-comments", false, "Do not add comments to the dump")
	f.Bool("skip-dump-date", false, "Do not add the dump date to the dump")
	f.Bool("skip-tz-utc", false, "Do not set the time zone of the dump to UTC")
	f.StringP("where", "w", "", "Dump only rows selected by the given WHERE condition")
	f.Duration("read-timeout", 0, "Timeout of the read of a single table, no timeout when 0")
	f.Bool("progress", false, "Show the progress of every table on stderr")
	f.String("gdpr-replacements", "", "The gdpr-replacements document as a JSON string")
	f.String("gdpr-replacements-file", "", "File holding the gdpr-replacements JSON document")
	f.Bool("debug-sql", false, "Add the query of every table as a comment to the dump")
	f.Bool("opt", false, "Shorthand for --add-drop-table --add-locks --disable-keys --extended-insert")
	f.BoolP("quote-names", "Q", true, "Quote identifiers, always on")

	f.Lookup("quote-names").Hidden = true

	return cmd
}

// RunMySQLDump runs the dump with the settings of flags and the positional arguments.
func RunMySQLDump(ctx context.Context, flags *pflag.FlagSet, args []string) error {
	loader := &config.Loader{
		ConfigFile: configFile,
		Flags:      flags,
		Args:       positionalSettings(args),
	}
	spec, err := loader.Load()
	if err != nil {
		return err
	}

	replacements, err := config.LoadReplacements(spec.GDPRReplacements, spec.GDPRReplacementsFile)
	if err != nil {
		return err
	}

	var e *engine.Engine
	var anonOpts []anonymiser.Option
	if spec.DebugSQL {
		anonOpts = append(anonOpts, anonymiser.WithDebugSQL(commentFunc(func(table, text string) error {
			return e.Comment(table, text)
		})))
	}
	anon, err := anonymiser.New(replacements, anonOpts...)
	if err != nil {
		return err
	}

	connOpts, err := connectionOptions(spec.Settings)
	if err != nil {
		return err
	}

	logger := log.WithField("db-type", connOpts.Driver)
	if parsed, err := dsn.Parse(connOpts.DSN); err == nil {
		logger = logger.WithField("dsn", parsed.Redacted())
	}
	logger.Debug("connecting...")

	rdr, err := reader.Connect(connOpts)
	if err != nil {
		return stacktrace.Propagate(err, "error connecting to reader")
	}
	defer rdr.Close()

	out, err := text.OpenOutput(spec.ResultFile, spec.Compress)
	if err != nil {
		return err
	}
	d := text.NewDumper(out, dumperOptions(rdr.Dialect(), spec.Settings))

	var bars progress.Builder
	if spec.Progress {
		bars = progress.NewBuilder(os.Stderr)
	}

	e = engine.New(rdr, d, engine.Opts{
		Tables:            spec.Tables,
		IncludeTables:     spec.IncludeTables,
		ExcludeTables:     spec.ExcludedTables(),
		Where:             spec.Where,
		NoData:            spec.NoData,
		NoCreateInfo:      spec.NoCreateInfo,
		SingleTransaction: spec.SingleTransaction,
		Progress:          bars,
	})

	log.Info("Dumping...")
	start := time.Now()

	dumpErr := e.Dump(ctx, anon)
	if err := d.Close(); err != nil && dumpErr == nil {
		dumpErr = stacktrace.Propagate(err, "failed to close the dump output")
	}
	if dumpErr != nil {
		return dumpErr
	}

	log.WithField("total_time", time.Since(start)).Info("Done!")
	return nil
}

// positionalSettings maps the arguments to the db-name and include-tables settings.
func positionalSettings(args []string) map[string]interface{} {
	settings := make(map[string]interface{})
	if len(args) > 0 {
		settings["db-name"] = args[0]
	}
	if len(args) > 1 {
		settings["include-tables"] = args[1:]
	}

	return settings
}

func connectionOptions(s config.Settings) (reader.ConnOpts, error) {
	opts := reader.ConnOpts{
		DSN:          s.DSN,
		Timeout:      s.ReadTimeout,
		MaxConns:     readMaxConns,
		MaxIdleConns: readMaxIdleConns,
		InitCommands: s.InitCommands,
	}
	if s.DSN != "" {
		return opts, nil
	}

	if s.DBName == "" {
		return opts, stacktrace.NewError("a database name or a dsn is required")
	}

	built, err := dsn.Build(dsn.Options{
		Type:     s.DBType,
		User:     s.User,
		Password: s.Password,
		Host:     s.Host,
		Port:     s.Port,
		Socket:   s.Socket,
		Database: s.DBName,
		Charset:  s.DefaultCharacterSet,
	})
	if err != nil {
		return opts, err
	}

	opts.Driver = s.DBType
	opts.DSN = built

	return opts, nil
}

func dumperOptions(dialect string, s config.Settings) text.Options {
	return text.Options{
		Dialect:             dialect,
		AddDropTable:        s.AddDropTable,
		AddLocks:            s.AddLocks,
		CompleteInsert:      s.CompleteInsert,
		DefaultCharacterSet: s.DefaultCharacterSet,
		DisableKeys:         s.DisableKeys,
		ExtendedInsert:      s.ExtendedInsert,
		HexBlob:             s.HexBlob,
		NetBufferLength:     s.NetBufferLength,
		NoAutocommit:        s.NoAutocommit,
		ResetAutoIncrement:  s.ResetAutoIncrement,
		SkipComments:        s.SkipComments,
		SkipDumpDate:        s.SkipDumpDate,
		SkipTzUTC:           s.SkipTzUTC,
	}
}
