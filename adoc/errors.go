package adoc

import (
	"errors"
	"fmt"

	"github.com/hesusruiz/adoc/safe"
)

// ErrNoContent is returned when there is nothing to parse.
var ErrNoContent = errors.New("no content")

// ErrMaxNesting is reported when blocks nest deeper than Options.MaxNesting.
// The offending block is not parsed further.
var ErrMaxNesting = errors.New("maximum block nesting exceeded")

// SecurityError is returned when an include path escapes the jail under a
// safe mode that does not allow recovering.
type SecurityError = safe.SecurityError

// ContractError reports a bug in a collaborator, like an extension that
// produced a block of an unknown context.
type ContractError struct {
	Context Context
	Msg     string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Context, e.Msg)
}

// SyntaxError locates a diagnostic in the compiler style `file:line:col: msg`.
type SyntaxError struct {
	Filename string
	Line     int
	Column   int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Msg)
}
