package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/sqlite"
)

const fixture = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT);
INSERT INTO users VALUES (1, 'Alice', 'alice@example.com'), (2, 'Bob', 'bob@example.com'), (3, NULL, 'carol@example.com');
`

type (
	ReadTableTestSuite struct {
		suite.Suite
		rdr reader.Reader
	}

	// upperHooks selects upper(name) and replaces every email.
	upperHooks struct {
		f        reader.ColumnFormatter
		table    string
		queries  []string
		columns  []string
		failWith error
		short    bool
	}
)

func (h *upperHooks) SelectColumns(columns []string) ([]string, error) {
	h.columns = columns
	list := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == "name" {
			list = append(list, "upper("+h.f.FormatColumn(h.table, c)+") AS "+h.f.QuoteIdentifier(c))
			continue
		}
		list = append(list, h.f.FormatColumn(h.table, c))
	}
	if h.short {
		list = list[1:]
	}

	return list, nil
}

func (h *upperHooks) TransformValue(column string, value interface{}) (interface{}, error) {
	if column != "email" {
		return value, nil
	}
	if h.failWith != nil {
		return nil, h.failWith
	}

	return "redacted", nil
}

func (h *upperHooks) ObserveQuery(query string) error {
	h.queries = append(h.queries, query)
	return nil
}

func TestReadTableTestSuite(t *testing.T) {
	suite.Run(t, new(ReadTableTestSuite))
}

func (s *ReadTableTestSuite) SetupTest() {
	dsn := filepath.Join(s.T().TempDir(), "shop.db")

	conn, err := sql.Open("sqlite3", dsn)
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Exec(fixture)
	s.Require().NoError(err)

	s.rdr, err = reader.Connect(reader.ConnOpts{DSN: dsn, MaxConns: 2})
	s.Require().NoError(err)
}

func (s *ReadTableTestSuite) TearDownTest() {
	s.Require().NoError(s.rdr.Close())
}

func (s *ReadTableTestSuite) read(opts reader.ReadTableOpt) ([]database.Row, error) {
	rowChan := make(chan database.Row)
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.rdr.ReadTable(context.Background(), "users", rowChan, opts)
	}()

	var rows []database.Row
	for row := range rowChan {
		rows = append(rows, row)
	}

	return rows, <-errChan
}

func (s *ReadTableTestSuite) TestReadTableWithHooks() {
	hooks := &upperHooks{f: s.rdr, table: "users"}

	rows, err := s.read(reader.ReadTableOpt{Hooks: hooks})
	s.Require().NoError(err)

	s.Equal([]string{"id", "name", "email"}, hooks.columns)
	s.Equal([]string{`SELECT "users"."id", upper("users"."name") AS "name", "users"."email" FROM "users"`}, hooks.queries)

	s.Require().Len(rows, 3)
	s.Equal([]string{"1", "ALICE", "redacted"}, cells(rows[0]))
	s.Equal([]string{"3", "<nil>", "redacted"}, cells(rows[2]))
	s.Equal("email", rows[0][2].Column)
}

func (s *ReadTableTestSuite) TestReadTableWithoutHooks() {
	rows, err := s.read(reader.ReadTableOpt{})
	s.Require().NoError(err)

	s.Require().Len(rows, 3)
	s.Equal([]string{"2", "Bob", "bob@example.com"}, cells(rows[1]))
}

func (s *ReadTableTestSuite) TestReadTableWithTableConfig() {
	opts := reader.NewReadTableOpt(&config.Table{
		Name: "users",
		Filter: config.Filter{
			Match: "id < 3",
			Sorts: map[string]string{"id": "desc"},
			Limit: 1,
		},
	})
	opts.Hooks = &upperHooks{f: s.rdr, table: "users"}

	rows, err := s.read(opts)
	s.Require().NoError(err)

	s.Require().Len(rows, 1)
	s.Equal([]string{"2", "BOB", "redacted"}, cells(rows[0]))
}

func (s *ReadTableTestSuite) TestReadTableFailingValueHook() {
	rows, err := s.read(reader.ReadTableOpt{Hooks: &upperHooks{f: s.rdr, table: "users", failWith: errors.New("boom")}})

	s.Require().Error(err)
	s.Contains(err.Error(), "failed to transform users.email")
	s.Empty(rows)
}

func (s *ReadTableTestSuite) TestReadTableShortSelectList() {
	hooks := &upperHooks{f: s.rdr, table: "users", short: true}

	_, err := s.read(reader.ReadTableOpt{Hooks: hooks})

	s.Require().Error(err)
	s.Contains(err.Error(), "has 2 entries for 3 columns")
	s.Empty(hooks.queries)
}

// cells renders the values of a row as text.
func cells(row database.Row) []string {
	out := make([]string, len(row))
	for i, c := range row {
		switch v := c.Value.(type) {
		case []byte:
			out[i] = string(v)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	return out
}
