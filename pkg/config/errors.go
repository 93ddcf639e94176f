package config

import (
	"github.com/palantir/stacktrace"
)

// Error codes shared by the replacement configuration and the anonymiser.
// Every one of them is fatal to a dump run.
const (
	// ErrCodeConfiguration is returned when the replacements document is not well-formed.
	ErrCodeConfiguration stacktrace.ErrorCode = iota + 1
	// ErrCodeClassification is returned when a transform spec matches none of the known shapes.
	ErrCodeClassification
	// ErrCodeGeneration is returned when a synthetic generator is unknown or fails.
	ErrCodeGeneration
)

// IsConfigurationError reports whether err carries ErrCodeConfiguration.
func IsConfigurationError(err error) bool {
	return err != nil && stacktrace.GetCode(err) == ErrCodeConfiguration
}

// IsClassificationError reports whether err carries ErrCodeClassification.
func IsClassificationError(err error) bool {
	return err != nil && stacktrace.GetCode(err) == ErrCodeClassification
}

// IsGenerationError reports whether err carries ErrCodeGeneration.
func IsGenerationError(err error) bool {
	return err != nil && stacktrace.GetCode(err) == ErrCodeGeneration
}
