package anonymiser

import (
	"sort"

	"github.com/palantir/stacktrace"
)

// Parameters are the params of a generator spec, as decoded from JSON.
type Parameters map[string]interface{}

// FindParameter returns the typed value of a parameter and whether it was set.
func FindParameter[T any](params Parameters, name string) (T, bool, error) {
	valAny, found := params[name]
	if !found {
		return *new(T), false, nil
	}

	val, ok := valAny.(T)
	if !ok {
		return *new(T), true, stacktrace.NewError("parameter %s has unexpected type %T", name, valAny)
	}

	return val, true, nil
}

// validateParameters rejects parameter names a generator does not know.
func validateParameters(params Parameters, known ...string) error {
	var unknown []string
	for name := range params {
		if !contains(known, name) {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return stacktrace.NewError("unknown parameters %v, expected %v", unknown, known)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
