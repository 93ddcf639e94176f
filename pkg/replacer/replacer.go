package replacer

import (
	"fmt"
	"strings"
)

// Replacer rewrites substrings of fetched values.
type Replacer struct {
	before string
	after  string
	count  int
}

// New creates a Replacer changing the first count occurrences of before into after,
// all of them when count is negative.
func New(before, after string, count int) *Replacer {
	return &Replacer{before: before, after: after, count: count}
}

// Replace returns the value with the replacements applied. NULL values are kept.
func (r *Replacer) Replace(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return strings.Replace(string(v), r.before, r.after, r.count)
	default:
		return strings.Replace(fmt.Sprint(v), r.before, r.after, r.count)
	}
}
