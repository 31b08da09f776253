package custom_errors

import (
	"errors"
)

// ValidationError collects every problem found while validating a config
// or a job so callers see all of them at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

// Add records err. Nil errors are ignored.
func (v *ValidationError) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return errors.Join(v.Errors...).Error()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (v *ValidationError) Unwrap() []error {
	return v.Errors
}
