package config

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"

	"github.com/palantir/stacktrace"
)

type (
	// Replacements maps a table name to the transform specs of its columns.
	// It is built once before a dump starts and is only read afterwards.
	Replacements map[string]map[string]TransformSpec

	// TransformSpec is the configuration value describing how one column is masked.
	// It holds the column's JSON fragment as written by the user; the anonymiser
	// classifies it.
	TransformSpec struct {
		raw json.RawMessage
	}
)

// NewTransformSpec creates a spec from a raw JSON fragment.
func NewTransformSpec(raw json.RawMessage) TransformSpec {
	return TransformSpec{raw: raw}
}

// Raw returns the JSON fragment of the spec.
func (s TransformSpec) Raw() json.RawMessage {
	return s.raw
}

// IsEmpty reports whether the spec means "no transformation": missing, null or "".
func (s TransformSpec) IsEmpty() bool {
	trimmed := bytes.TrimSpace(s.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`))
}

func (s TransformSpec) String() string {
	return string(bytes.TrimSpace(s.raw))
}

// ParseReplacements decodes a replacements document. The top level must be an object keyed
// by table name whose values are objects keyed by column name.
func ParseReplacements(doc []byte) (Replacements, error) {
	replacements := make(Replacements)
	if len(bytes.TrimSpace(doc)) == 0 {
		return replacements, nil
	}

	var tables map[string]map[string]json.RawMessage
	if err := json.Unmarshal(doc, &tables); err != nil {
		return nil, stacktrace.PropagateWithCode(err, ErrCodeConfiguration, "invalid gdpr-replacements json")
	}

	for table, columns := range tables {
		specs := make(map[string]TransformSpec, len(columns))
		for column, raw := range columns {
			spec := NewTransformSpec(raw)
			if spec.IsEmpty() {
				continue
			}
			specs[column] = spec
		}
		replacements[table] = specs
	}

	return replacements, nil
}

// LoadReplacements reads the replacements from the inline document, or from file when
// no inline document is given.
func LoadReplacements(inline string, file string) (Replacements, error) {
	if inline != "" {
		return ParseReplacements([]byte(inline))
	}
	if file == "" {
		return make(Replacements), nil
	}

	doc, err := os.ReadFile(file)
	if err != nil {
		return nil, stacktrace.PropagateWithCode(err, ErrCodeConfiguration, "could not read gdpr-replacements file %s", file)
	}

	return ParseReplacements(doc)
}

// Lookup returns the spec configured for table.column. Absence is not an error and
// means the value passes through unchanged.
func (r Replacements) Lookup(table, column string) (TransformSpec, bool) {
	columns, ok := r[table]
	if !ok {
		return TransformSpec{}, false
	}

	spec, ok := columns[column]
	if !ok || spec.IsEmpty() {
		return TransformSpec{}, false
	}

	return spec, true
}

// TableNames returns the configured table names, sorted.
func (r Replacements) TableNames() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ColumnNames returns the configured columns of table, sorted.
func (r Replacements) ColumnNames(table string) []string {
	columns := r[table]
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
