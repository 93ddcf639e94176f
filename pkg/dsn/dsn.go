package dsn

import (
	"errors"
	"net"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/palantir/stacktrace"
)

var (
	// ErrEmptyDsn defines error returned when no dsn is provided
	ErrEmptyDsn = errors.New("empty string provided for dsn")
	// ErrInvalidDsn defines error returned when the dsn is invalid
	ErrInvalidDsn = errors.New("invalid dsn")
)

// Database types accepted by Build, they match the reader driver names.
const (
	TypeMySQL    = "mysql"
	TypePostgres = "pgsql"
	TypeSQLite   = "sqlite"
)

type (
	// DSN describes how a DSN looks like
	DSN struct {
		Type       string
		Username   string
		Password   string
		Protocol   string
		Address    string
		Host       string
		Port       string
		DataSource string
		Params     map[string]string
	}

	// Options are the connection settings a DSN is built from.
	Options struct {
		Type     string
		User     string
		Password string
		Host     string
		Port     int
		Socket   string
		Database string
		Charset  string
	}
)

var regex = regexp.MustCompile(
	`^(?:(?P<Type>.*?)?://)?` + // [type://]
		`(?:(?P<Username>.*?)(?::(?P<Password>.*))?@)?` + // [username[:password]@]
		`(?:(?P<Protocol>[^\(]*)(?:\((?P<Address>[^\)]*)\))?)?` + // [protocol[(address)]]
		`\/(?P<DataSource>.*?)` + // /datasource
		`(?:\?(?P<Params>[^\?]*))?$`) // [?param1=value1]

// Parse turns a dsn string into a parsed DSN struct.
func Parse(s string) (*DSN, error) {
	if s == "" {
		return nil, ErrEmptyDsn
	}

	matches := regex.FindStringSubmatch(s)
	if len(matches) < 1 || len(matches) > 1 && matches[1] == "" {
		return nil, ErrInvalidDsn
	}
	names := regex.SubexpNames()

	dsn := &DSN{Params: make(map[string]string)}
	vof := reflect.ValueOf(dsn).Elem()
	for n, match := range matches[1:] {
		name := names[n+1]
		if name != "Params" {
			vof.FieldByName(name).SetString(match)
			continue
		}

		values, err := url.ParseQuery(match)
		if err != nil {
			return nil, ErrInvalidDsn
		}
		for key, vals := range values {
			dsn.Params[key] = strings.Join(vals, ",")
		}
	}

	if dsn.Protocol != "" && dsn.Address == "" {
		dsn.Address = dsn.Protocol
		dsn.Protocol = ""
	}
	if host, port, err := net.SplitHostPort(dsn.Address); err == nil {
		dsn.Host = host
		dsn.Port = port
	}

	return dsn, nil
}

// Redacted returns the string representation of the DSN with the password masked.
func (d DSN) Redacted() string {
	if d.Password != "" {
		d.Password = "xxxxx"
	}

	return d.String()
}

// String converts a DSN struct into its string representation.
func (d DSN) String() string {
	var b strings.Builder

	if d.Type != "" {
		b.WriteString(d.Type + "://")
	}

	if d.Username != "" {
		b.WriteString(d.Username)
		if d.Password != "" {
			b.WriteString(":" + d.Password)
		}
		b.WriteString("@")
	}

	b.WriteString(d.Protocol)
	if d.Address != "" {
		if d.Protocol != "" {
			b.WriteString("(" + d.Address + ")")
		} else {
			b.WriteString(d.Address)
		}
	}

	b.WriteString("/" + d.DataSource)

	if len(d.Params) > 0 {
		values := make(url.Values, len(d.Params))
		for key, value := range d.Params {
			values.Set(key, value)
		}
		b.WriteString("?" + values.Encode())
	}

	return b.String()
}

// Build creates the driver DSN of a database type from connection settings.
func Build(opts Options) (string, error) {
	switch opts.Type {
	case TypeMySQL:
		return buildMySQL(opts), nil
	case TypePostgres:
		return buildPostgres(opts), nil
	case TypeSQLite:
		if opts.Database == "" {
			return "", stacktrace.NewError("a sqlite database file is required")
		}
		if strings.HasPrefix(opts.Database, "file:") {
			return opts.Database, nil
		}
		return "file:" + opts.Database, nil
	default:
		return "", stacktrace.NewError("unsupported database type %q, supported are %s, %s and %s", opts.Type, TypeMySQL, TypePostgres, TypeSQLite)
	}
}

func buildMySQL(opts Options) string {
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.DBName = opts.Database

	if opts.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = opts.Socket
	} else {
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(hostOrDefault(opts.Host), strconv.Itoa(portOrDefault(opts.Port, 3306)))
	}

	if opts.Charset != "" {
		cfg.Params = map[string]string{"charset": opts.Charset}
	}

	return cfg.FormatDSN()
}

func buildPostgres(opts Options) string {
	u := url.URL{
		Scheme: "postgres",
		Path:   "/" + opts.Database,
	}
	switch {
	case opts.User != "" && opts.Password != "":
		u.User = url.UserPassword(opts.User, opts.Password)
	case opts.User != "":
		u.User = url.User(opts.User)
	}

	if opts.Socket != "" {
		u.RawQuery = url.Values{"host": {opts.Socket}}.Encode()
	} else {
		u.Host = net.JoinHostPort(hostOrDefault(opts.Host), strconv.Itoa(portOrDefault(opts.Port, 5432)))
	}

	return u.String()
}

func hostOrDefault(host string) string {
	if host == "" {
		return "localhost"
	}
	return host
}

func portOrDefault(port int, def int) int {
	if port <= 0 {
		return def
	}
	return port
}
