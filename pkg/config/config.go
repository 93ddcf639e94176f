package config

import (
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/palantir/stacktrace"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config-related defaults
const (
	DefaultConfigFileName = ".gdpr-dump.toml"
	defaultConfigName     = ".gdpr-dump"
)

type (
	// Spec represents the global app configuration.
	Spec struct {
		Settings `mapstructure:",squash"`
		Matchers Matchers
		Tables   Tables
	}

	// Matchers are variables to store filter data,
	// you can declare a filter once and reuse it among tables.
	Matchers map[string]string

	// Tables are an array of table definitions.
	Tables []*Table

	// Table represents a per table dump definition.
	Table struct {
		// Name is the table name.
		Name string
		// IgnoreData if set to true, it will dump the table structure without its data.
		IgnoreData bool
		// Filter represents the way you want to filter the results.
		Filter Filter
		// Relationships is a collection of relationship definitions.
		Relationships []*Relationship
	}

	// Filter represents the way you want to filter the results.
	Filter struct {
		// Match is a condition field to dump only certain amount data.
		Match string
		// Limit defines a limit of results to be fetched.
		Limit uint64
		// Sorts is the sort condition for the table.
		Sorts map[string]string
	}

	// Relationship represents the relationship between the table and referenced table.
	Relationship struct {
		// Table is the table name.
		Table string
		// ForeignKey is the table name foreign key.
		ForeignKey string
		// ReferencedTable is the referenced table name.
		ReferencedTable string
		// ReferencedKey is the referenced table primary key name.
		ReferencedKey string
	}
)

// FindByName find a table by its name.
func (t Tables) FindByName(name string) *Table {
	for _, table := range t {
		if table.Name == name {
			return table
		}
	}

	return nil
}

// Loader merges every configuration layer of a dump run. From lowest to highest precedence:
// defaults, the TOML config file, MySQL option files, the --opt preset and explicit flags
// or arguments.
type Loader struct {
	// ConfigFile is the TOML file to read. When empty .gdpr-dump.toml is looked up in
	// the working directory and skipped if missing.
	ConfigFile string
	// Flags are the command line flags, only the changed ones take part in the merge.
	Flags *pflag.FlagSet
	// Args are values coming from positional arguments.
	Args map[string]interface{}
}

// Load builds the configuration spec.
func (l *Loader) Load() (*Spec, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	if l.Flags != nil {
		if err := v.BindPFlags(l.Flags); err != nil {
			return nil, stacktrace.Propagate(err, "could not bind flags")
		}
	}

	if err := l.readConfigFile(v); err != nil {
		return nil, err
	}

	cnf, err := LoadDefaultsFiles(v.GetString("defaults-file"))
	if err != nil {
		return nil, err
	}
	if err := v.MergeConfigMap(cnf); err != nil {
		return nil, stacktrace.Propagate(err, "could not merge option files")
	}

	if v.GetBool("opt") {
		if err := v.MergeConfigMap(OptPreset()); err != nil {
			return nil, stacktrace.Propagate(err, "could not merge --opt preset")
		}
	}

	for key, value := range l.Args {
		v.Set(key, value)
	}

	cfgSpec := new(Spec)
	if err := v.Unmarshal(cfgSpec); err != nil {
		return nil, stacktrace.Propagate(err, "could not unmarshal configuration")
	}

	cfgSpec.resolveMatchers()

	return cfgSpec, nil
}

func (l *Loader) readConfigFile(v *viper.Viper) error {
	if l.ConfigFile != "" {
		v.SetConfigFile(l.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return stacktrace.Propagate(err, "could not read configurations")
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return stacktrace.Propagate(err, "could not read configurations")
	}

	return nil
}

// replace matchers aliases in tables with matchers expressions
func (s *Spec) resolveMatchers() {
	for i, t := range s.Tables {
		if t.Filter.Match == "" {
			continue
		}

		if m, ok := s.Matchers[t.Filter.Match]; ok {
			s.Tables[i].Filter.Match = m
			continue
		}

		// matcher keys are lower-cased by the parser - check this case as well
		if m, ok := s.Matchers[strings.ToLower(t.Filter.Match)]; ok {
			s.Tables[i].Filter.Match = m
		}
	}
}

// sample is the subset of the spec written by WriteSample.
type sample struct {
	AddDropTable     bool   `toml:"add-drop-table"`
	ExtendedInsert   bool   `toml:"extended-insert"`
	DebugSQL         bool   `toml:"debug-sql"`
	GDPRReplacements string `toml:"gdpr-replacements-file"`
	Matchers         Matchers
	Tables           Tables
}

// WriteSample generates and writes sample config to a writer
func WriteSample(w io.Writer) error {
	e := toml.NewEncoder(w)
	return e.Encode(sample{
		AddDropTable:     true,
		ExtendedInsert:   true,
		GDPRReplacements: "gdpr-replacements.json",
		Matchers: map[string]string{
			"ActiveUsers": "users.active = TRUE",
		},
		Tables: []*Table{
			{
				Name: "users",
				Filter: Filter{
					Match: "users.active = TRUE",
					Sorts: map[string]string{"users.id": "asc"},
					Limit: 100,
				},
			},
			{
				Name: "orders",
				Filter: Filter{
					Match: "ActiveUsers",
					Limit: 10,
				},
				Relationships: []*Relationship{
					{
						ReferencedTable: "users",
						ReferencedKey:   "id",
						ForeignKey:      "user_id",
					},
				},
			},
			{
				Name:       "logs",
				IgnoreData: true,
			},
		},
	})
}
