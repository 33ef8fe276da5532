package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================
// Every failure reported by the migrator or the transformer carries one of
// these kinds. None of them is transient, so nothing is retried.

var (
	// ErrNotFound means the source path does not resolve to a readable file.
	ErrNotFound = errors.New("not found")

	// ErrParse means an input document or stylesheet is not well-formed XML.
	ErrParse = errors.New("parse error")

	// ErrTransform means applying a stylesheet failed.
	ErrTransform = errors.New("transform error")

	// ErrValue means an element holds non-numeric text where a number is expected.
	ErrValue = errors.New("value error")
)

// Error ties an error kind to the path it happened on.
// errors.Is matches both the kind and the underlying cause.
type Error struct {
	Kind error
	Path string
	Err  error
}

// NewError creates an Error of the given kind.
func NewError(kind error, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the taxonomy kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrParse, ErrTransform, ErrValue} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
