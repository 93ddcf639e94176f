package postgres

import (
	"bufio"
	"bytes"
	"os/exec"
	"strings"

	"github.com/palantir/stacktrace"
	log "github.com/sirupsen/logrus"
)

type (
	// PgDump loads table definitions.
	PgDump interface {
		GetStructure(table string) (stmt string, err error)
	}

	pgDump struct {
		dsn string
	}
)

// NewPgDump creates a PgDump running the pg_dump binary found in PATH.
func NewPgDump(dsn string) PgDump {
	return &pgDump{dsn: dsn}
}

// GetStructure runs a schema-only pg_dump of a single quoted table name.
func (p *pgDump) GetStructure(table string) (string, error) {
	command, err := exec.LookPath("pg_dump")
	if err != nil {
		return "", stacktrace.Propagate(err, "pg_dump is required to dump postgres table structures")
	}

	logger := log.WithFields(log.Fields{
		"command": command,
		"table":   table,
	})

	cmd := exec.Command(
		command,
		"--dbname", p.dsn,
		"--schema-only",
		"--no-owner",
		"--no-privileges",
		"--table", table,
	)

	logger.Debug("loading schema for table")
	cmdErr := logger.WriterLevel(log.WarnLevel)
	defer cmdErr.Close()

	buf := new(bytes.Buffer)

	cmd.Stdin = nil
	cmd.Stderr = cmdErr
	cmd.Stdout = buf

	if err := cmd.Run(); err != nil {
		return "", stacktrace.Propagate(err, "failed to load schema for table %s", table)
	}

	return stripSessionSettings(buf.String()), nil
}

// stripSessionSettings drops the comments and SET statements pg_dump writes around the DDL.
func stripSessionSettings(dump string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(dump))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "--"):
			continue
		case strings.HasPrefix(trimmed, "SET "), strings.HasPrefix(trimmed, "SELECT pg_catalog.set_config"):
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}

	return strings.TrimSpace(out.String())
}
