package query

import (
	"strings"
	"time"
)

// FieldAccessor exposes named attributes of a value. Name matching must be
// case-insensitive. The second result is false when no such attribute exists.
type FieldAccessor interface {
	Field(name string) (any, bool)
}

// Record is a timestamped, field-queryable element of a record source.
type Record interface {
	FieldAccessor
	Timestamp() time.Time
}

// FieldTable is a statically registered accessor table for a record type.
// Keys are matched case-insensitively; register them in any case.
//
//	var orderFields = query.FieldTable[Order]{
//	    "amount": func(o Order) any { return o.Amount },
//	}
//
//	func (o Order) Field(name string) (any, bool) { return orderFields.Lookup(o, name) }
type FieldTable[R any] map[string]func(R) any

// Lookup returns the value of the named field of rec.
func (t FieldTable[R]) Lookup(rec R, name string) (any, bool) {
	if get, ok := t[name]; ok {
		return get(rec), true
	}
	for key, get := range t {
		if strings.EqualFold(key, name) {
			return get(rec), true
		}
	}
	return nil, false
}
