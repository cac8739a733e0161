package guard

import (
	"errors"
	"fmt"
)

// ParseError reports a guard phrase that could not be turned into a node:
// a malformed numeric parameter in a timing phrase, or an error-type name
// the resolver does not know (in which case it wraps the resolver's
// error, e.g. *errtype.ResolutionError).
type ParseError struct {
	// Phrase is the guard phrase that failed to parse.
	Phrase string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid guard %q: %v", e.Phrase, e.Err)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a guard parse error.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
