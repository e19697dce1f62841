package helper

import "fmt"

// NewError wraps an error with the context of the failing operation.
// The context should name the operation, e.g. "load entities sql".
func NewError(context string, err error) error {
	return fmt.Errorf("error in %s: %w", context, err)
}
