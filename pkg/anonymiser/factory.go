package anonymiser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/palantir/stacktrace"

	"github.com/hellofresh/gdpr-dump/pkg/config"
)

// generatorPrefix marks a plain string spec naming a generator.
const generatorPrefix = "generator:"

// structuredSpec is the object form of a transform spec.
type structuredSpec struct {
	Expression *json.RawMessage `json:"expression"`
	Generator  *json.RawMessage `json:"generator"`
	Params     *json.RawMessage `json:"params"`
}

// Create classifies a non-empty spec and builds its transformer.
// Specs of an unknown shape fail with a classification error, unknown generators or
// invalid generator parameters with a generation error.
func Create(table, column string, spec config.TransformSpec) (Transformer, error) {
	if spec.IsEmpty() {
		return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: empty transform spec", table, column)
	}

	raw := bytes.TrimSpace(spec.Raw())
	switch raw[0] {
	case '"':
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, stacktrace.PropagateWithCode(err, config.ErrCodeClassification, "%s.%s: invalid string spec", table, column)
		}
		if name, ok := strings.CutPrefix(value, generatorPrefix); ok {
			return newSynthetic(table, column, strings.TrimSpace(name), nil)
		}
		return &SelectExpressionTransformer{expression: value}, nil
	case '{':
		return createFromObject(table, column, raw)
	default:
		return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: unsupported transform spec %s", table, column, raw)
	}
}

func createFromObject(table, column string, raw []byte) (Transformer, error) {
	var s structuredSpec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, stacktrace.PropagateWithCode(err, config.ErrCodeClassification, "%s.%s: invalid object spec", table, column)
	}

	switch {
	case s.Expression != nil && s.Generator != nil:
		return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: spec names both an expression and a generator", table, column)
	case s.Expression != nil:
		var expression string
		if err := json.Unmarshal(*s.Expression, &expression); err != nil || strings.TrimSpace(expression) == "" {
			return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: expression must be a non-empty string", table, column)
		}
		if s.Params != nil {
			return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: expressions take no params", table, column)
		}
		return &SelectExpressionTransformer{expression: expression}, nil
	case s.Generator != nil:
		var name string
		if err := json.Unmarshal(*s.Generator, &name); err != nil || strings.TrimSpace(name) == "" {
			return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: generator must be a non-empty string", table, column)
		}

		var params Parameters
		if s.Params != nil {
			if err := json.Unmarshal(*s.Params, &params); err != nil {
				return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: params must be an object", table, column)
			}
		}
		return newSynthetic(table, column, strings.TrimSpace(name), params)
	default:
		return nil, stacktrace.NewErrorWithCode(config.ErrCodeClassification, "%s.%s: object spec names neither an expression nor a generator", table, column)
	}
}

func newSynthetic(table, column, name string, params Parameters) (Transformer, error) {
	def, ok := generators[name]
	if !ok {
		return nil, stacktrace.NewErrorWithCode(config.ErrCodeGeneration, "%s.%s: unknown generator %q", table, column, name)
	}

	if params == nil {
		params = Parameters{}
	}
	generate, err := def.build(Target{Table: table, Column: column}, params)
	if err != nil {
		return nil, stacktrace.PropagateWithCode(err, config.ErrCodeGeneration, "%s.%s: invalid parameters for generator %q", table, column, name)
	}

	return &SyntheticValueTransformer{generator: name, generate: generate}, nil
}
