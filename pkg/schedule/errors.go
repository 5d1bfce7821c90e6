package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument is returned when a payload holds no XML element at all.
	ErrEmptyDocument = errors.New("document has no root element")
	// ErrMissingField is wrapped by PartialFieldError when a node lacks a required value.
	ErrMissingField = errors.New("missing field")
)

// MalformedResponseError reports a payload that is not parsable XML.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// PartialFieldError reports a single node that was skipped because a required
// attribute or child was missing or invalid.
type PartialFieldError struct {
	Node  string
	Field string
	Err   error
}

func (e *PartialFieldError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %v", e.Node, e.Field, e.Err)
}

func (e *PartialFieldError) Unwrap() error {
	return e.Err
}
