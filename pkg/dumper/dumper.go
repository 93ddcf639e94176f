package dumper

import (
	"context"

	"github.com/hellofresh/gdpr-dump/pkg/database"
)

type (
	// A Dumper writes a database's structure and data to the provided stream.
	Dumper interface {
		// DumpHeader writes the dump preamble.
		DumpHeader(info database.ServerInfo) error
		// BeginTable starts the section of a table. Nothing of the section reaches
		// the output before it is committed.
		BeginTable(table string) TableDumper
		// DumpFooter writes the end of the dump.
		DumpFooter() error
		// Close flushes and closes the dumper resources and releases them.
		Close() error
	}

	// TableDumper writes the structure and data of one table.
	TableDumper interface {
		// DumpStructure dumps the structure of the table given its create statement.
		DumpStructure(stmt string) error
		// Comment adds a comment to the data of the section.
		Comment(text string) error
		// DumpRows writes the rows received from rowChan until it is closed.
		DumpRows(ctx context.Context, rowChan <-chan database.Row) error
		// Commit writes the section to the output.
		Commit() error
		// Discard drops the section.
		Discard()
	}
)
