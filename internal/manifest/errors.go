package manifest

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unreachable manifest, sub-manifest or entity definition.
type NotFoundError struct {
	Location string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("manifest not found: %s: %v", e.Location, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// FormatError reports a malformed or cyclic manifest tree.
type FormatError struct {
	Location string
	Reason   string
	Err      error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid manifest %s: %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.Location, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

var errNoDefinition = errors.New("entity definition not declared in document")
