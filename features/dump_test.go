package features

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hellofresh/gdpr-dump/pkg/anonymiser"
	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/dumper/engine"
	"github.com/hellofresh/gdpr-dump/pkg/dumper/text"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/mysql"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/postgres"
)

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error {
	return nil
}

// dumpDatabase returns the anonymised SQL script of the database behind dsn.
func dumpDatabase(t *testing.T, dsn string, timeout time.Duration, replacements string) string {
	t.Helper()

	rdr, err := reader.Connect(reader.ConnOpts{DSN: dsn, Timeout: timeout, MaxConns: 5})
	require.NoError(t, err, "Unable to create reader")
	defer rdr.Close()

	repl, err := config.ParseReplacements([]byte(replacements))
	require.NoError(t, err, "Unable to parse replacements")

	out := new(bytes.Buffer)
	d := text.NewDumper(bufferCloser{out}, text.Options{
		Dialect:             rdr.Dialect(),
		AddDropTable:        true,
		AddLocks:            true,
		DefaultCharacterSet: "utf8mb4",
		DisableKeys:         true,
		ExtendedInsert:      true,
		HexBlob:             true,
		NoAutocommit:        true,
	})

	e := engine.New(rdr, d, engine.Opts{SingleTransaction: true})
	a, err := anonymiser.New(repl, anonymiser.WithDebugSQL(e))
	require.NoError(t, err, "Unable to create anonymiser")

	require.NoError(t, e.Dump(context.Background(), a), "Failed to dump")
	require.NoError(t, d.Close())

	return out.String()
}

// fetchRows returns every row of table ordered by id.
func fetchRows(t *testing.T, conn *sql.DB, table string) [][]interface{} {
	t.Helper()

	rows, err := conn.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY id", table))
	require.NoError(t, err, "Unable to query table")
	defer rows.Close()

	columns, err := rows.Columns()
	require.NoError(t, err)

	var result [][]interface{}
	for rows.Next() {
		fields := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range fields {
			pointers[i] = &fields[i]
		}
		require.NoError(t, rows.Scan(pointers...), "Unable to fetch row")
		result = append(result, fields)
	}
	require.NoError(t, rows.Err())

	return result
}

// fetchColumn returns the values of one column of table ordered by id.
func fetchColumn(t *testing.T, conn *sql.DB, table string, column string) []interface{} {
	t.Helper()

	rows, err := conn.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id", column, table))
	require.NoError(t, err, "Unable to query column")
	defer rows.Close()

	var values []interface{}
	for rows.Next() {
		var value interface{}
		require.NoError(t, rows.Scan(&value))
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		values = append(values, value)
	}
	require.NoError(t, rows.Err())

	return values
}
