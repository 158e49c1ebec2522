package query

import "strings"

// OptDateFormat overrides the point label layout.
const OptDateFormat = "dateformat"

// Options holds the key=value pairs of a query's options clause.
// Keys are lower-case.
type Options map[string]string

// Get returns the value of key, matched case-insensitively.
func (o Options) Get(key string) (string, bool) {
	v, ok := o[strings.ToLower(strings.TrimSpace(key))]
	return v, ok
}

// DateFormat returns the dateformat option as a Go layout (see Layout), or def
// when the option is absent.
func (o Options) DateFormat(def string) string {
	v, ok := o.Get(OptDateFormat)
	if !ok || v == "" {
		return def
	}
	return Layout(v)
}
