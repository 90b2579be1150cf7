package business

import (
	"errors"
	"fmt"
)

var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrSlugTaken        = errors.New("slug already in use")
	ErrAlreadyOwned     = errors.New("owner already has a business")
)

// InvalidInputError rejects business, service or hours input.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
