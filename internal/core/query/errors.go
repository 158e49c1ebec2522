package query

import (
	"errors"
	"fmt"
)

// Error kinds. Test with errors.Is.
var (
	ErrSyntax          = errors.New("query syntax error")
	ErrUnknownFunction = errors.New("unknown function")
	ErrEmptyWindow     = errors.New("no records in requested window")
	ErrFieldResolution = errors.New("field resolution failed")
	ErrTooManyBuckets  = errors.New("too many buckets")
)

// QueryError reports a problem in the query text, with its byte offset.
type QueryError struct {
	Pos     int    // byte offset in the query text
	Message string // human-readable error message
	Err     error  // ErrSyntax or ErrUnknownFunction
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s at position %d: %s", e.Err, e.Pos, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func syntaxErrorf(pos int, msgFmt string, args ...any) *QueryError {
	return &QueryError{Pos: pos, Message: fmt.Sprintf(msgFmt, args...), Err: ErrSyntax}
}

// FieldError reports a path that could not be resolved to a number on a record.
type FieldError struct {
	Path    string // full dotted path
	Segment string // segment that failed; empty when the final conversion failed
	Err     error  // underlying cause, may be nil
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: path %q", ErrFieldResolution, e.Path)
	if e.Segment != "" {
		msg += fmt.Sprintf(", segment %q", e.Segment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Is makes every FieldError match ErrFieldResolution.
func (e *FieldError) Is(target error) bool {
	return target == ErrFieldResolution
}
