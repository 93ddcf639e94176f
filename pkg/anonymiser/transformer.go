package anonymiser

// Kind tells when a transformer is applied.
type Kind int

const (
	// SelectExpression transformers rewrite the column reference of the read query.
	SelectExpression Kind = iota + 1
	// SyntheticValue transformers replace every fetched value of the column.
	SyntheticValue
)

func (k Kind) String() string {
	switch k {
	case SelectExpression:
		return "select-expression"
	case SyntheticValue:
		return "synthetic-value"
	default:
		return "unknown"
	}
}

type (
	// Transformer masks a single column.
	Transformer interface {
		// Kind returns the variant of the transformer.
		Kind() Kind
		// Value produces the masked value. A select expression returns its SQL text and ignores
		// the fetched value, a synthetic value is generated from the fetched one.
		Value(original interface{}) (interface{}, error)
	}

	// SelectExpressionTransformer replaces the column reference with a SQL expression.
	SelectExpressionTransformer struct {
		expression string
	}

	// SyntheticValueTransformer replaces fetched values with generated ones.
	SyntheticValueTransformer struct {
		generator string
		generate  Generator
	}
)

// Kind returns SelectExpression.
func (t *SelectExpressionTransformer) Kind() Kind {
	return SelectExpression
}

// Value returns the configured expression unmodified.
func (t *SelectExpressionTransformer) Value(interface{}) (interface{}, error) {
	return t.expression, nil
}

// Expression returns the configured expression unmodified.
func (t *SelectExpressionTransformer) Expression() string {
	return t.expression
}

// Kind returns SyntheticValue.
func (t *SyntheticValueTransformer) Kind() Kind {
	return SyntheticValue
}

// Value runs the generator for a fetched value.
func (t *SyntheticValueTransformer) Value(original interface{}) (interface{}, error) {
	return t.generate(original)
}

// Generator returns the name of the generator.
func (t *SyntheticValueTransformer) Generator() string {
	return t.generator
}
