package mesh

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is classification.
var (
	ErrInvalidData = errors.New("mesh: invalid data")
	ErrDomain      = errors.New("mesh: incompatible operands")
)

// InvalidDataError reports malformed sample input. Index is -1 when the
// problem is not tied to a single sample.
type InvalidDataError struct {
	Index  int
	Reason string
}

func (e *InvalidDataError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("mesh: invalid data: %s", e.Reason)
	}
	return fmt.Sprintf("mesh: invalid data: sample %d: %s", e.Index, e.Reason)
}

func (e *InvalidDataError) Unwrap() error { return ErrInvalidData }

// DomainError reports operands that cannot be combined.
type DomainError struct {
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("mesh: incompatible operands: %s", e.Reason)
}

func (e *DomainError) Unwrap() error { return ErrDomain }

func invalid(index int, format string, args ...any) error {
	return &InvalidDataError{Index: index, Reason: fmt.Sprintf(format, args...)}
}
