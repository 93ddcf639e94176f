package text

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/dumper"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
)

type (
	// Options are the output settings of the text dumper. Names follow mysqldump.
	Options struct {
		Dialect             string
		AddDropTable        bool
		AddLocks            bool
		CompleteInsert      bool
		DefaultCharacterSet string
		DisableKeys         bool
		ExtendedInsert      bool
		HexBlob             bool
		NetBufferLength     int
		NoAutocommit        bool
		ResetAutoIncrement  bool
		SkipComments        bool
		SkipDumpDate        bool
		SkipTzUTC           bool
		// Now returns the dump date, time.Now when nil
		Now func() time.Time
	}

	// textDumper writes a mysqldump compatible SQL script.
	textDumper struct {
		mu     sync.Mutex
		out    *bufio.Writer
		closer io.Closer
		opts   Options
		quote  func(string) string
	}

	// tableDumper buffers the section of a table until it is committed.
	tableDumper struct {
		mu      sync.Mutex
		parent  *textDumper
		table   string
		buf     bytes.Buffer
		data    bool
		started bool
		done    bool
	}
)

var autoIncrementRegexp = regexp.MustCompile(`\s+AUTO_INCREMENT=\d+`)

// NewDumper creates a text dumper writing to w. Closing the dumper closes w.
func NewDumper(w io.WriteCloser, opts Options) dumper.Dumper {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NetBufferLength <= 0 {
		opts.NetBufferLength = 1000000
	}

	return &textDumper{
		out:    bufio.NewWriter(w),
		closer: w,
		opts:   opts,
		quote:  quoteFunc(opts.Dialect),
	}
}

func quoteFunc(dialect string) func(string) string {
	switch dialect {
	case reader.DialectPostgres:
		return pq.QuoteIdentifier
	case reader.DialectSQLite:
		return func(name string) string {
			return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
		}
	default:
		return func(name string) string {
			return "`" + strings.Replace(name, "`", "``", -1) + "`"
		}
	}
}

func (d *textDumper) isMySQL() bool {
	return d.opts.Dialect == "" || d.opts.Dialect == reader.DialectMySQL
}

// DumpHeader writes the dump preamble and the session settings.
func (d *textDumper) DumpHeader(info database.ServerInfo) error {
	b := new(bytes.Buffer)

	if !d.opts.SkipComments {
		fmt.Fprintf(b, "-- gdpr-dump %s dump\n--\n", d.opts.Dialect)
		fmt.Fprintf(b, "-- Host: %s\tDatabase: %s\n", info.Host, info.Database)
		b.WriteString("-- ------------------------------------------------------\n")
		fmt.Fprintf(b, "-- Server version \t%s\n", info.Version)
		if !d.opts.SkipDumpDate {
			fmt.Fprintf(b, "-- Date: %s\n", d.opts.Now().Format(time.RFC1123Z))
		}
		b.WriteString("\n")
	}

	switch {
	case d.isMySQL():
		b.WriteString("/*!40101 SET @OLD_CHARACTER_SET_CLIENT=@@CHARACTER_SET_CLIENT */;\n")
		b.WriteString("/*!40101 SET @OLD_CHARACTER_SET_RESULTS=@@CHARACTER_SET_RESULTS */;\n")
		b.WriteString("/*!40101 SET @OLD_COLLATION_CONNECTION=@@COLLATION_CONNECTION */;\n")
		fmt.Fprintf(b, "/*!40101 SET NAMES %s */;\n", d.opts.DefaultCharacterSet)
		if !d.opts.SkipTzUTC {
			b.WriteString("/*!40103 SET @OLD_TIME_ZONE=@@TIME_ZONE */;\n")
			b.WriteString("/*!40103 SET TIME_ZONE='+00:00' */;\n")
		}
		b.WriteString("/*!40014 SET @OLD_UNIQUE_CHECKS=@@UNIQUE_CHECKS, UNIQUE_CHECKS=0 */;\n")
		b.WriteString("/*!40014 SET @OLD_FOREIGN_KEY_CHECKS=@@FOREIGN_KEY_CHECKS, FOREIGN_KEY_CHECKS=0 */;\n")
		b.WriteString("/*!40101 SET @OLD_SQL_MODE=@@SQL_MODE, SQL_MODE='NO_AUTO_VALUE_ON_ZERO' */;\n")
		b.WriteString("/*!40111 SET @OLD_SQL_NOTES=@@SQL_NOTES, SQL_NOTES=0 */;\n")
	case d.opts.Dialect == reader.DialectPostgres:
		fmt.Fprintf(b, "SET client_encoding = '%s';\n", postgresEncoding(d.opts.DefaultCharacterSet))
		b.WriteString("SET standard_conforming_strings = on;\n")
		if !d.opts.SkipTzUTC {
			b.WriteString("SET TIME ZONE 'UTC';\n")
		}
		b.WriteString("SET session_replication_role = replica;\n")
	case d.opts.Dialect == reader.DialectSQLite:
		b.WriteString("PRAGMA foreign_keys=OFF;\n")
	}

	return d.write(b.Bytes())
}

// BeginTable starts the buffered section of a table.
func (d *textDumper) BeginTable(table string) dumper.TableDumper {
	return &tableDumper{parent: d, table: table}
}

// DumpFooter restores the session settings changed by the header.
func (d *textDumper) DumpFooter() error {
	b := new(bytes.Buffer)

	switch {
	case d.isMySQL():
		if !d.opts.SkipTzUTC {
			b.WriteString("/*!40103 SET TIME_ZONE=@OLD_TIME_ZONE */;\n")
		}
		b.WriteString("/*!40101 SET SQL_MODE=@OLD_SQL_MODE */;\n")
		b.WriteString("/*!40014 SET FOREIGN_KEY_CHECKS=@OLD_FOREIGN_KEY_CHECKS */;\n")
		b.WriteString("/*!40014 SET UNIQUE_CHECKS=@OLD_UNIQUE_CHECKS */;\n")
		b.WriteString("/*!40101 SET CHARACTER_SET_CLIENT=@OLD_CHARACTER_SET_CLIENT */;\n")
		b.WriteString("/*!40101 SET CHARACTER_SET_RESULTS=@OLD_CHARACTER_SET_RESULTS */;\n")
		b.WriteString("/*!40101 SET COLLATION_CONNECTION=@OLD_COLLATION_CONNECTION */;\n")
		b.WriteString("/*!40111 SET SQL_NOTES=@OLD_SQL_NOTES */;\n")
	case d.opts.Dialect == reader.DialectPostgres:
		b.WriteString("SET session_replication_role = DEFAULT;\n")
	case d.opts.Dialect == reader.DialectSQLite:
		b.WriteString("PRAGMA foreign_keys=ON;\n")
	}

	if !d.opts.SkipComments {
		b.WriteString("\n")
		if d.opts.SkipDumpDate {
			b.WriteString("-- Dump completed\n")
		} else {
			fmt.Fprintf(b, "-- Dump completed on %s\n", d.opts.Now().Format(time.RFC1123Z))
		}
	}

	return d.write(b.Bytes())
}

// Close flushes the output and closes it.
func (d *textDumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.out.Flush(); err != nil {
		d.closer.Close()
		return stacktrace.Propagate(err, "failed to flush dump output")
	}

	return d.closer.Close()
}

func (d *textDumper) write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.out.Write(p); err != nil {
		return stacktrace.Propagate(err, "failed to write dump output")
	}

	return nil
}

func (d *textDumper) writeComment(b *bytes.Buffer, text string) {
	if d.opts.SkipComments {
		return
	}
	fmt.Fprintf(b, "--\n-- %s\n--\n\n", text)
}

// DumpStructure writes the create statement of the table.
func (t *tableDumper) DumpStructure(stmt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return stacktrace.NewError("section of %s is already closed", t.table)
	}
	if t.data {
		return stacktrace.NewError("structure of %s must precede its data", t.table)
	}

	d := t.parent
	d.writeComment(&t.buf, "Table structure for table "+d.quote(t.table))
	if d.opts.AddDropTable {
		fmt.Fprintf(&t.buf, "DROP TABLE IF EXISTS %s;\n", d.quote(t.table))
	}

	if d.opts.ResetAutoIncrement {
		stmt = autoIncrementRegexp.ReplaceAllString(stmt, "")
	}
	t.buf.WriteString(strings.TrimRight(strings.TrimSpace(stmt), ";"))
	t.buf.WriteString(";\n\n")

	return nil
}

// Comment writes text as a SQL block comment.
func (t *tableDumper) Comment(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return stacktrace.NewError("section of %s is already closed", t.table)
	}
	t.beginData()
	fmt.Fprintf(&t.buf, "/* %s */\n\n", strings.Replace(text, "*/", "* /", -1))

	return nil
}

// DumpRows writes INSERT statements for every received row.
func (t *tableDumper) DumpRows(ctx context.Context, rowChan <-chan database.Row) error {
	var (
		lineSize  int
		statement bool
	)

	for {
		var (
			row  database.Row
			more bool
		)
		select {
		case row, more = <-rowChan:
		case <-ctx.Done():
			return stacktrace.Propagate(ctx.Err(), "dump of %s interrupted", t.table)
		}
		if !more {
			break
		}

		values, err := t.parent.formatRow(row)
		if err != nil {
			return stacktrace.Propagate(err, "failed to format row of %s", t.table)
		}

		t.mu.Lock()
		t.start()
		if !statement || !t.parent.opts.ExtendedInsert {
			lineSize = t.writeString(t.parent.insertPrefix(t.table, row) + "(" + values + ")")
			statement = true
		} else {
			lineSize += t.writeString(",(" + values + ")")
		}
		if lineSize > t.parent.opts.NetBufferLength || !t.parent.opts.ExtendedInsert {
			t.writeString(";\n")
			statement = false
		}
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if statement {
		t.writeString(";\n")
	}
	t.start()
	t.finish()

	return nil
}

// Commit writes the buffered section to the output.
func (t *tableDumper) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = true
	return t.parent.write(t.buf.Bytes())
}

// Discard drops the buffered section.
func (t *tableDumper) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = true
	t.buf.Reset()
}

// beginData writes the data comment, once.
func (t *tableDumper) beginData() {
	if t.data {
		return
	}
	t.data = true
	t.parent.writeComment(&t.buf, "Dumping data for table "+t.parent.quote(t.table))
}

// start writes the statements preceding the first insert, once.
func (t *tableDumper) start() {
	if t.started {
		return
	}
	t.started = true
	t.beginData()

	opts := t.parent.opts
	table := t.parent.quote(t.table)
	switch {
	case t.parent.isMySQL():
		if opts.AddLocks {
			t.writeString(fmt.Sprintf("LOCK TABLES %s WRITE;\n", table))
		}
		if opts.DisableKeys {
			t.writeString(fmt.Sprintf("/*!40000 ALTER TABLE %s DISABLE KEYS */;\n", table))
		}
		if opts.NoAutocommit {
			t.writeString("SET autocommit=0;\n")
		}
	case opts.NoAutocommit:
		t.writeString("BEGIN;\n")
	}
}

// finish writes the statements following the last insert.
func (t *tableDumper) finish() {
	opts := t.parent.opts
	table := t.parent.quote(t.table)
	switch {
	case t.parent.isMySQL():
		if opts.DisableKeys {
			t.writeString(fmt.Sprintf("/*!40000 ALTER TABLE %s ENABLE KEYS */;\n", table))
		}
		if opts.AddLocks {
			t.writeString("UNLOCK TABLES;\n")
		}
		if opts.NoAutocommit {
			t.writeString("COMMIT;\n")
		}
	case opts.NoAutocommit:
		t.writeString("COMMIT;\n")
	}
	t.writeString("\n")
}

func (t *tableDumper) writeString(s string) int {
	n, _ := t.buf.WriteString(s)
	return n
}

func (d *textDumper) insertPrefix(table string, row database.Row) string {
	if !d.opts.CompleteInsert {
		return fmt.Sprintf("INSERT INTO %s VALUES ", d.quote(table))
	}

	columns := make([]string, len(row))
	for i, c := range row {
		columns[i] = d.quote(c.Column)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES ", d.quote(table), strings.Join(columns, ", "))
}

func (d *textDumper) formatRow(row database.Row) (string, error) {
	values := make([]string, len(row))
	for i, cell := range row {
		value, err := d.formatValue(cell)
		if err != nil {
			return "", stacktrace.Propagate(err, "column %s", cell.Column)
		}
		values[i] = value
	}

	return strings.Join(values, ","), nil
}

func postgresEncoding(charset string) string {
	switch strings.ToLower(charset) {
	case "", "utf8", "utf8mb4", "utf8mb3":
		return "UTF8"
	case "latin1":
		return "LATIN1"
	default:
		return strings.ToUpper(charset)
	}
}
