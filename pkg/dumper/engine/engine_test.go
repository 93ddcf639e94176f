package engine

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/hellofresh/gdpr-dump/pkg/anonymiser"
	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/dumper/text"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	_ "github.com/hellofresh/gdpr-dump/pkg/reader/sqlite"
)

const fixture = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT NOT NULL, token BLOB);
INSERT INTO users VALUES (1, 'Alice', 'alice@example.com', X'0102'), (2, NULL, 'bob@example.com', NULL);
CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, note TEXT);
INSERT INTO orders VALUES (10, 1, 'it''s fine'), (11, 2, 'second');
`

type (
	DumpEngineTestSuite struct {
		suite.Suite
		dsn string
	}

	bufferCloser struct {
		*bytes.Buffer
	}
)

func (bufferCloser) Close() error {
	return nil
}

func TestDumpEngineTestSuite(t *testing.T) {
	suite.Run(t, new(DumpEngineTestSuite))
}

func (s *DumpEngineTestSuite) SetupTest() {
	s.dsn = filepath.Join(s.T().TempDir(), "shop.db")

	conn, err := sql.Open("sqlite3", s.dsn)
	s.Require().NoError(err)
	defer conn.Close()

	_, err = conn.Exec(fixture)
	s.Require().NoError(err, "failed to load fixture")
}

// dump runs a dump with the given replacements document, an empty one disables the anonymiser.
func (s *DumpEngineTestSuite) dump(opts Opts, replacements string) (string, error) {
	rdr, err := reader.Connect(reader.ConnOpts{DSN: s.dsn, MaxConns: 5})
	s.Require().NoError(err)
	defer rdr.Close()

	out := new(bytes.Buffer)
	d := text.NewDumper(bufferCloser{out}, text.Options{
		Dialect:        rdr.Dialect(),
		ExtendedInsert: true,
		SkipComments:   true,
	})

	e := New(rdr, d, opts)

	var hooks reader.HookProvider
	if replacements != "" {
		repl, err := config.ParseReplacements([]byte(replacements))
		s.Require().NoError(err)
		a, err := anonymiser.New(repl, anonymiser.WithDebugSQL(e))
		s.Require().NoError(err)
		hooks = a
	}

	dumpErr := e.Dump(context.Background(), hooks)
	s.Require().NoError(d.Close())

	return out.String(), dumpErr
}

func (s *DumpEngineTestSuite) TestDump() {
	out, err := s.dump(Opts{}, `{
		"users": {
			"email": "'redacted@example.com'",
			"name": {"generator": "literal", "params": {"value": "Jane"}}
		}
	}`)
	s.Require().NoError(err)

	s.Contains(out, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT NOT NULL, token BLOB);\n")
	s.Contains(out, "CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, note TEXT);\n")
	s.Contains(out, `/* SELECT "users"."id", "users"."name", 'redacted@example.com' AS "email", "users"."token" FROM "users" */`)
	s.Contains(out, `INSERT INTO "users" VALUES (1,'Jane','redacted@example.com',X'0102'),(2,'Jane','redacted@example.com',NULL);`)
	s.Contains(out, `INSERT INTO "orders" VALUES (10,1,'it''s fine'),(11,2,'second');`)
	s.NotContains(out, "alice@example.com")
	s.NotContains(out, "Alice")
	s.Contains(out, "PRAGMA foreign_keys=OFF;\n")
	s.Contains(out, "PRAGMA foreign_keys=ON;\n")
}

func (s *DumpEngineTestSuite) TestDumpWithoutAnonymiser() {
	out, err := s.dump(Opts{}, "")
	s.Require().NoError(err)

	s.Contains(out, `INSERT INTO "users" VALUES (1,'Alice','alice@example.com',X'0102'),(2,NULL,'bob@example.com',NULL);`)
	s.NotContains(out, "/* SELECT")
}

func (s *DumpEngineTestSuite) TestDumpDiscardsFailedTable() {
	out, err := s.dump(Opts{}, `{
		"orders": {
			"note": {"generator": "template", "params": {"template": "{{ fail \"boom\" }}"}}
		}
	}`)
	s.Require().Error(err)
	s.True(config.IsGenerationError(err), "error should carry the generation code: %v", err)

	s.NotContains(out, "CREATE TABLE orders")
	s.NotContains(out, `INSERT INTO "orders"`)
	s.NotContains(out, `FROM "orders" */`)
	s.NotContains(out, "PRAGMA foreign_keys=ON;")
}

func (s *DumpEngineTestSuite) TestDumpSelection() {
	out, err := s.dump(Opts{
		IncludeTables: []string{"users", "orders"},
		ExcludeTables: []string{"orders"},
		Tables:        config.Tables{{Name: "users", IgnoreData: true}},
	}, "")
	s.Require().NoError(err)

	s.Contains(out, "CREATE TABLE users")
	s.NotContains(out, "CREATE TABLE orders")
	s.NotContains(out, "INSERT INTO")
}

func (s *DumpEngineTestSuite) TestDumpFilters() {
	out, err := s.dump(Opts{
		Where: "id > 0",
		Tables: config.Tables{{
			Name:   "users",
			Filter: config.Filter{Match: "email LIKE 'bob%'"},
		}},
		NoCreateInfo: true,
	}, "")
	s.Require().NoError(err)

	s.NotContains(out, "CREATE TABLE")
	s.Contains(out, `INSERT INTO "users" VALUES (2,NULL,'bob@example.com',NULL);`)
	s.Contains(out, `INSERT INTO "orders" VALUES (10,1,'it''s fine'),(11,2,'second');`)
}

func (s *DumpEngineTestSuite) TestDumpNoData() {
	out, err := s.dump(Opts{NoData: true, SingleTransaction: true}, "")
	s.Require().NoError(err)

	s.Contains(out, "CREATE TABLE users")
	s.NotContains(out, "INSERT INTO")
}

func (s *DumpEngineTestSuite) TestDumpUnknownIncludedTable() {
	_, err := s.dump(Opts{IncludeTables: []string{"customers"}}, "")
	s.Require().Error(err)
	s.Contains(err.Error(), "couldn't find table customers")
}

func (s *DumpEngineTestSuite) TestCommentOutsideTable() {
	e := New(nil, nil, Opts{})
	s.Error(e.Comment("users", "SELECT 1"))
}

func TestCombineConditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scenario string
		where    string
		match    string
		expected string
	}{
		{scenario: "when nothing is set", expected: ""},
		{scenario: "when only where is set", where: "id > 1", expected: "id > 1"},
		{scenario: "when only match is set", match: "active = 1", expected: "active = 1"},
		{scenario: "when both are set", where: "id > 1 OR id < 0", match: "active = 1", expected: "(id > 1 OR id < 0) AND (active = 1)"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.scenario, func(t *testing.T) {
			assert.Equal(t, test.expected, combineConditions(test.where, test.match))
		})
	}
}
