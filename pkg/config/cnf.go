package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/palantir/stacktrace"
	"gopkg.in/ini.v1"
)

// systemDefaultsFiles are always consulted, in this order.
var systemDefaultsFiles = []string{"/etc/my.cnf", "/etc/mysql/my.cnf"}

// cnfSections are the option file groups read by the dump.
var cnfSections = []string{"client", "mysqldump"}

// DefaultsFiles returns the option files consulted for defaults, in merge order.
func DefaultsFiles(extra string) []string {
	files := append([]string{}, systemDefaultsFiles...)
	if extra != "" {
		files = append(files, extra)
	}
	if home := os.Getenv("MYSQL_HOME"); home != "" {
		files = append(files, filepath.Join(home, ".my.cnf"), filepath.Join(home, ".mylogin.cnf"))
	}

	return files
}

// LoadDefaultsFiles merges the [client] and [mysqldump] groups of the MySQL option files.
// Later files win. Missing or unreadable implicit files are skipped; the extra file, when
// given, must exist and parse.
func LoadDefaultsFiles(extra string) (map[string]interface{}, error) {
	settings := make(map[string]interface{})
	for _, file := range DefaultsFiles(extra) {
		values, err := readDefaultsFile(file)
		if err != nil {
			if file == extra {
				return nil, err
			}
			continue
		}

		for key, value := range values {
			settings[key] = value
		}
	}

	return settings, nil
}

func readDefaultsFile(file string) (map[string]interface{}, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, stacktrace.Propagate(err, "could not find option file %s", file)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:             true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, file)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not parse option file %s", file)
	}

	known := settingKeys()
	values := make(map[string]interface{})
	for _, name := range cnfSections {
		section, err := cfg.GetSection(name)
		if err != nil {
			continue
		}

		for _, key := range section.Keys() {
			setting, ok := known[normalizeKey(key.Name())]
			if !ok {
				continue
			}
			values[setting] = key.Value()
		}
	}

	return values, nil
}

// settingKeys maps normalised option names to setting keys.
func settingKeys() map[string]string {
	keys := make(map[string]string)
	for key := range Defaults() {
		keys[normalizeKey(key)] = key
	}

	return keys
}

// option files accept both dashes and underscores in names
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
}
