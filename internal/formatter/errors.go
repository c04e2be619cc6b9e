package formatter

import (
	"errors"
	"fmt"
)

var ErrMissingField = errors.New("required field missing")

// FormatError is returned when a record cannot be rendered in the selected
// mode. Nothing is written for that record.
type FormatError struct {
	Mode  OutputMode
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot render record as %s: field %s: %v", e.Mode.Flag(), e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
