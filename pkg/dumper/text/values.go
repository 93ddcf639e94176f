package text

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/database"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
	"github.com/hellofresh/gdpr-dump/pkg/utils"
)

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	`'`, `\'`,
	`"`, `\"`,
	"\x1a", `\Z`,
)

// numericTypes are database types whose raw text is a valid SQL literal.
var numericTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "INT": true, "INTEGER": true, "BIGINT": true,
	"DECIMAL": true, "NUMERIC": true, "FLOAT": true, "DOUBLE": true, "REAL": true, "YEAR": true,
	"INT2": true, "INT4": true, "INT8": true, "FLOAT4": true, "FLOAT8": true, "OID": true,
}

// binaryTypes are database types holding raw bytes.
var binaryTypes = map[string]bool{
	"BINARY": true, "VARBINARY": true, "TINYBLOB": true, "BLOB": true, "MEDIUMBLOB": true,
	"LONGBLOB": true, "BIT": true, "GEOMETRY": true, "BYTEA": true,
}

func normalizeType(dbType string) string {
	return strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ")
}

// formatValue renders a cell as a SQL literal of the dumper dialect.
func (d *textDumper) formatValue(cell *database.Cell) (string, error) {
	var ts utils.TypeScanner
	ts.Scan(cell.Value)
	if !ts.Valid {
		return "", stacktrace.NewError("unsupported value type %T", cell.Value)
	}

	switch ts.Detected {
	case utils.KindNull:
		return "NULL", nil
	case utils.KindInt, utils.KindUint:
		return fmt.Sprint(ts.Value), nil
	case utils.KindFloat:
		f, _ := strconv.ParseFloat(fmt.Sprint(ts.Value), 64)
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case utils.KindBool:
		return d.formatBool(ts.Value.(bool)), nil
	case utils.KindTime:
		return d.quoteString(d.formatTime(ts.Value.(time.Time))), nil
	case utils.KindBytes:
		return d.formatBytes(normalizeType(cell.Type), ts.Value.([]byte)), nil
	default:
		return d.quoteString(fmt.Sprint(ts.Value)), nil
	}
}

func (d *textDumper) formatBool(b bool) string {
	if d.opts.Dialect == reader.DialectPostgres {
		return strconv.FormatBool(b)
	}
	if b {
		return "1"
	}
	return "0"
}

func (d *textDumper) formatTime(t time.Time) string {
	if d.opts.Dialect == reader.DialectPostgres {
		return t.Format("2006-01-02 15:04:05.999999Z07:00")
	}
	return t.Format("2006-01-02 15:04:05.999999")
}

func (d *textDumper) formatBytes(dbType string, b []byte) string {
	switch {
	case numericTypes[dbType] && len(b) > 0:
		return string(b)
	case binaryTypes[dbType] && d.opts.Dialect == reader.DialectPostgres:
		return `'\x` + hex.EncodeToString(b) + `'`
	case binaryTypes[dbType] && d.opts.Dialect == reader.DialectSQLite:
		return "X'" + hex.EncodeToString(b) + "'"
	case binaryTypes[dbType] && (d.opts.HexBlob || dbType == "BIT"):
		if len(b) == 0 {
			return "''"
		}
		return "0x" + strings.ToUpper(hex.EncodeToString(b))
	default:
		return d.quoteString(string(b))
	}
}

func (d *textDumper) quoteString(s string) string {
	if d.isMySQL() {
		return "'" + mysqlEscaper.Replace(s) + "'"
	}
	return "'" + strings.Replace(s, "'", "''", -1) + "'"
}
