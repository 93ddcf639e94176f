package anonymiser

import (
	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/config"
	"github.com/hellofresh/gdpr-dump/pkg/reader"
)

type (
	// CommentWriter receives the diagnostic comments of a table dump.
	CommentWriter interface {
		Comment(table string, text string) error
	}

	// Anonymiser masks table columns as configured by the replacements.
	// It is safe to share across table reads; every table gets its own hooks.
	Anonymiser struct {
		replacements config.Replacements
		debug        CommentWriter
	}

	// Option configures an Anonymiser.
	Option func(*Anonymiser)

	// tableHooks are the hooks of a single table read. They cache the transformers of
	// the table and must not be shared between tables.
	tableHooks struct {
		table        string
		replacements config.Replacements
		formatter    reader.ColumnFormatter
		debug        CommentWriter
		transformers map[string]Transformer
	}

	plainFormatter struct{}
)

// WithDebugSQL emits every assembled table query as a comment before the table rows.
func WithDebugSQL(w CommentWriter) Option {
	return func(a *Anonymiser) {
		a.debug = w
	}
}

// New creates an Anonymiser. Every configured spec is classified and built once so that
// a misconfiguration fails before anything is dumped.
func New(replacements config.Replacements, opts ...Option) (*Anonymiser, error) {
	for _, table := range replacements.TableNames() {
		for _, column := range replacements.ColumnNames(table) {
			spec, ok := replacements.Lookup(table, column)
			if !ok {
				continue
			}
			if _, err := Create(table, column, spec); err != nil {
				return nil, err
			}
		}
	}

	a := &Anonymiser{replacements: replacements}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// ForTable returns the hooks reading table. A nil formatter leaves identifiers unquoted.
func (a *Anonymiser) ForTable(table string, f reader.ColumnFormatter) reader.Hooks {
	if f == nil {
		f = plainFormatter{}
	}

	return &tableHooks{
		table:        table,
		replacements: a.replacements,
		formatter:    f,
		debug:        a.debug,
		transformers: make(map[string]Transformer),
	}
}

// SelectColumns substitutes "<expression> AS <column>" for columns masked by a select
// expression and plain references for the others.
func (h *tableHooks) SelectColumns(columns []string) ([]string, error) {
	entries := make([]string, len(columns))
	for i, column := range columns {
		t, err := h.transformer(column)
		if err != nil {
			return nil, err
		}

		if expr, ok := t.(*SelectExpressionTransformer); ok {
			entries[i] = expr.Expression() + " AS " + h.formatter.QuoteIdentifier(column)
			continue
		}
		entries[i] = h.formatter.FormatColumn(h.table, column)
	}

	return entries, nil
}

// TransformValue returns the generated value for columns masked by a generator and
// the fetched value for the others.
func (h *tableHooks) TransformValue(column string, value interface{}) (interface{}, error) {
	t, err := h.transformer(column)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Kind() != SyntheticValue {
		return value, nil
	}

	generated, err := t.Value(value)
	if err != nil {
		return nil, stacktrace.PropagateWithCode(err, config.ErrCodeGeneration, "%s.%s: generator failed", h.table, column)
	}

	return generated, nil
}

// ObserveQuery writes the query as a comment when debug SQL is enabled.
func (h *tableHooks) ObserveQuery(query string) error {
	if h.debug == nil {
		return nil
	}

	return h.debug.Comment(h.table, query)
}

// transformer returns the cached transformer of a column, nil when the column is not masked.
func (h *tableHooks) transformer(column string) (Transformer, error) {
	if t, ok := h.transformers[column]; ok {
		return t, nil
	}

	spec, ok := h.replacements.Lookup(h.table, column)
	if !ok {
		h.transformers[column] = nil
		return nil, nil
	}

	t, err := Create(h.table, column, spec)
	if err != nil {
		return nil, err
	}
	h.transformers[column] = t

	return t, nil
}

func (plainFormatter) QuoteIdentifier(name string) string {
	return name
}

func (plainFormatter) FormatColumn(_ string, column string) string {
	return column
}
