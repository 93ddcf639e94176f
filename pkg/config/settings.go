package config

import (
	"regexp"
	"time"
)

// Settings are the dump options. Names follow mysqldump.
type Settings struct {
	DBName        string   `mapstructure:"db-name"`
	IncludeTables []string `mapstructure:"include-tables"`
	IgnoreTables  []string `mapstructure:"ignore-table"`
	ResultFile    string   `mapstructure:"result-file"`

	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Socket       string `mapstructure:"socket"`
	DBType       string `mapstructure:"db-type"`
	DSN          string `mapstructure:"dsn"`
	DefaultsFile string `mapstructure:"defaults-file"`

	Compress            string        `mapstructure:"compress"`
	InitCommands        []string      `mapstructure:"init-commands"`
	NoData              bool          `mapstructure:"no-data"`
	ResetAutoIncrement  bool          `mapstructure:"reset-auto-increment"`
	AddDropTable        bool          `mapstructure:"add-drop-table"`
	AddLocks            bool          `mapstructure:"add-locks"`
	CompleteInsert      bool          `mapstructure:"complete-insert"`
	DefaultCharacterSet string        `mapstructure:"default-character-set"`
	DisableKeys         bool          `mapstructure:"disable-keys"`
	ExtendedInsert      bool          `mapstructure:"extended-insert"`
	HexBlob             bool          `mapstructure:"hex-blob"`
	NetBufferLength     int           `mapstructure:"net_buffer_length"`
	NoAutocommit        bool          `mapstructure:"no-autocommit"`
	NoCreateInfo        bool          `mapstructure:"no-create-info"`
	SingleTransaction   bool          `mapstructure:"single-transaction"`
	SkipComments        bool          `mapstructure:"skip-comments"`
	SkipDumpDate        bool          `mapstructure:"skip-dump-date"`
	SkipTzUTC           bool          `mapstructure:"skip-tz-utc"`
	Where               string        `mapstructure:"where"`
	ReadTimeout         time.Duration `mapstructure:"read-timeout"`
	Progress            bool          `mapstructure:"progress"`

	GDPRReplacements     string `mapstructure:"gdpr-replacements"`
	GDPRReplacementsFile string `mapstructure:"gdpr-replacements-file"`
	DebugSQL             bool   `mapstructure:"debug-sql"`
	Opt                  bool   `mapstructure:"opt"`
}

// Defaults returns the built-in value of every setting.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"db-name":                "",
		"include-tables":         []string{},
		"ignore-table":           []string{},
		"result-file":            "",
		"user":                   "",
		"password":               "",
		"host":                   "",
		"port":                   0,
		"socket":                 "",
		"db-type":                "mysql",
		"dsn":                    "",
		"defaults-file":          "",
		"compress":               "None",
		"init-commands":          []string{},
		"no-data":                false,
		"reset-auto-increment":   false,
		"add-drop-table":         false,
		"add-locks":              true,
		"complete-insert":        false,
		"default-character-set":  "utf8mb4",
		"disable-keys":           true,
		"extended-insert":        true,
		"hex-blob":               true,
		"net_buffer_length":      1000000,
		"no-autocommit":          true,
		"no-create-info":         false,
		"single-transaction":     true,
		"skip-comments":          false,
		"skip-dump-date":         false,
		"skip-tz-utc":            false,
		"where":                  "",
		"read-timeout":           "0s",
		"progress":               false,
		"gdpr-replacements":      "",
		"gdpr-replacements-file": "",
		"debug-sql":              false,
		"opt":                    false,
	}
}

// OptPreset returns the settings implied by --opt.
func OptPreset() map[string]interface{} {
	return map[string]interface{}{
		"add-drop-table":  true,
		"add-locks":       true,
		"disable-keys":    true,
		"extended-insert": true,
	}
}

var ignoreTableRegexp = regexp.MustCompile(`^.+\.(.+)$`)

// ExcludedTables returns the table names of the ignore-table settings. Values must be
// given as database.table, anything else is skipped.
func (s Settings) ExcludedTables() []string {
	var tables []string
	for _, name := range s.IgnoreTables {
		if m := ignoreTableRegexp.FindStringSubmatch(name); m != nil {
			tables = append(tables, m[1])
		}
	}

	return tables
}
