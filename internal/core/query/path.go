package query

import (
	"fmt"
	"strings"

	"github.com/aevon-lab/regraph/internal/core/aggregation"
	"github.com/shopspring/decimal"
)

// ResolvePath walks a dotted attribute path from v and converts the final value
// to a decimal. Each segment is looked up case-insensitively on a FieldAccessor
// or on a string-keyed map.
func ResolvePath(v any, path string) (decimal.Decimal, error) {
	final, err := resolveValue(v, path)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := aggregation.ToDecimal(final)
	if err != nil {
		return decimal.Zero, &FieldError{Path: path, Err: err}
	}
	return d, nil
}

func resolveValue(v any, path string) (any, error) {
	cur := v
	for _, segment := range strings.Split(path, ".") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			return nil, &FieldError{Path: path, Err: fmt.Errorf("empty path segment")}
		}
		next, ok, navigable := lookupField(cur, segment)
		if !navigable {
			return nil, &FieldError{Path: path, Segment: segment, Err: fmt.Errorf("cannot navigate into %T", cur)}
		}
		if !ok {
			return nil, &FieldError{Path: path, Segment: segment, Err: fmt.Errorf("no such field")}
		}
		cur = next
	}
	return cur, nil
}

// lookupField reports the value, whether the field exists, and whether v can
// hold named fields at all.
func lookupField(v any, name string) (value any, ok bool, navigable bool) {
	switch val := v.(type) {
	case FieldAccessor:
		value, ok = val.Field(name)
		return value, ok, true
	case map[string]any:
		value, ok = lookupMap(val, name)
		return value, ok, true
	case map[string]string:
		var s string
		s, ok = lookupMap(val, name)
		return s, ok, true
	default:
		return nil, false, false
	}
}

func lookupMap[V any](m map[string]V, name string) (V, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for key, v := range m {
		if strings.EqualFold(key, name) {
			return v, true
		}
	}
	var zero V
	return zero, false
}
