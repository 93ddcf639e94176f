package features

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PostgresTestSuite struct {
	suite.Suite
	rootDSN        string
	rootConnection *sql.DB
	databases      []string
	timeout        time.Duration
}

func TestPostgresTestSuite(t *testing.T) {
	s := &PostgresTestSuite{timeout: time.Second * 3}
	suite.Run(t, s)
}

func (s *PostgresTestSuite) TestDumpIsRestorable() {
	readDSN := s.createDatabase("pg_simple")
	dumpDSN := s.createDatabase("pg_simple_dump")

	s.loadFixture(readDSN, "pg_simple.sql")

	script := dumpDatabase(s.T(), readDSN, s.timeout, `{
		"users": {
			"email": "'user' || id || '@example.com'",
			"username": "generator:fake_username"
		}
	}`)
	s.Contains(script, `'user' || id || '@example.com' AS "email"`)
	s.NotContains(script, "alice@example.com")

	s.execScript(dumpDSN, script)

	source := s.open(readDSN)
	defer source.Close()
	target := s.open(dumpDSN)
	defer target.Close()

	s.Equal(fetchRows(s.T(), source, "orders"), fetchRows(s.T(), target, "orders"))
	s.Equal(fetchColumn(s.T(), source, "users", "avatar"), fetchColumn(s.T(), target, "users", "avatar"))
	s.Equal(fetchColumn(s.T(), source, "users", "active"), fetchColumn(s.T(), target, "users", "active"))
	s.Equal(
		[]interface{}{"user1@example.com", "user2@example.com"},
		fetchColumn(s.T(), target, "users", "email"),
	)
	s.NotEqual(fetchColumn(s.T(), source, "users", "username"), fetchColumn(s.T(), target, "users", "username"))
}

func (s *PostgresTestSuite) SetupSuite() {
	rootDSN, ok := os.LookupEnv("TEST_POSTGRES")
	if !ok {
		s.T().Skip("TEST_POSTGRES env is not defined")
	}
	if _, err := exec.LookPath("pg_dump"); err != nil {
		s.T().Skip("pg_dump is not installed")
	}

	_, err := url.Parse(rootDSN)
	s.Require().NoError(err, "TEST_POSTGRES failed to parse")

	s.rootDSN = rootDSN
	s.rootConnection, err = sql.Open("postgres", rootDSN)
	s.Require().NoError(err, "Failed to connect to postgres")
	s.Require().NoError(s.rootConnection.Ping(), "Failed to ping postgres")
}

func (s *PostgresTestSuite) TearDownSuite() {
	for _, db := range s.databases {
		s.dropDatabase(db)
	}

	s.rootConnection.Close()
}

func (s *PostgresTestSuite) createDatabase(name string) string {
	s.databases = append(s.databases, name)

	s.dropDatabase(name)

	_, err := s.rootConnection.Exec(fmt.Sprintf("CREATE DATABASE %s", name))
	s.Require().NoError(err, "Unable to create db")

	dbURL, _ := url.Parse(s.rootDSN)
	dbURL.Path = name
	return dbURL.String()
}

func (s *PostgresTestSuite) dropDatabase(name string) {
	_, err := s.rootConnection.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", name))
	s.NoError(err, "Unable to drop db")
}

func (s *PostgresTestSuite) open(dsn string) *sql.DB {
	conn, err := sql.Open("postgres", dsn)
	s.Require().NoError(err, "Unable to open db connection")

	return conn
}

func (s *PostgresTestSuite) loadFixture(dsn string, file string) {
	data, err := os.ReadFile(path.Join("../fixtures/", file))
	s.Require().NoError(err, "Unable to load fixture file")

	s.execScript(dsn, string(data))
}

func (s *PostgresTestSuite) execScript(dsn string, script string) {
	conn := s.open(dsn)
	defer conn.Close()

	_, err := conn.Exec(script)
	s.Require().NoError(err, "Unable to execute script")
}
