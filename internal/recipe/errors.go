package recipe

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes recipe resolution errors.
type ErrorCode string

const (
	// ErrCodeFetch indicates the document could not be read.
	ErrCodeFetch ErrorCode = "FETCH_FAILED"

	// ErrCodeParse indicates the document is not valid YAML.
	ErrCodeParse ErrorCode = "PARSE_FAILED"

	// ErrCodeSchema indicates the document does not satisfy the recipe schema.
	ErrCodeSchema ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeIncludeCycle indicates the include chain loops back on itself.
	ErrCodeIncludeCycle ErrorCode = "INCLUDE_CYCLE"

	// ErrCodeMergeConflict indicates two layers set a key with
	// incompatible shapes.
	ErrCodeMergeConflict ErrorCode = "MERGE_CONFLICT"

	// ErrCodeEval indicates a when predicate or template failed to
	// evaluate.
	ErrCodeEval ErrorCode = "EVALUATION_FAILED"
)

// Error is a structured recipe resolution error. It aborts the owning
// document only; sibling documents are unaffected.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Source is the document locator (file path or URL).
	Source string

	// Field names the offending field, when one can be named.
	Field string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: field %q: %v", e.Code, e.Source, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsIncludeCycle reports whether err is an include-cycle error.
// Uses errors.As to handle wrapped errors.
func IsIncludeCycle(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == ErrCodeIncludeCycle
	}
	return false
}
