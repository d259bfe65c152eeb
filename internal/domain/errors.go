package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input and weight-limit violations.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a referenced mover or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation is illegal in the mover's current quest state.
	ErrInvalidState = errors.New("invalid state")
	// ErrVersionConflict signals a lost compare-and-swap on a mover record.
	ErrVersionConflict = errors.New("mover was modified concurrently")

	// ErrMoverNotFound is returned when a mover id does not resolve.
	ErrMoverNotFound = fmt.Errorf("mover %w", ErrNotFound)
	// ErrItemNotFound is returned when a requested item id does not resolve.
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)
	// ErrWeightLimitExceeded is returned when the loaded set would outweigh the mover's limit.
	ErrWeightLimitExceeded = fmt.Errorf("%w: weight limit exceeded", ErrValidation)
)
