package action

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrSchemaViolation is wrapped by every SchemaError.
	ErrSchemaViolation = errors.New("action: schema violation")
	// ErrUnauthorized reports a mutation attempted by a non-authoritative origin.
	ErrUnauthorized    = errors.New("action: unauthorized origin")
	// ErrMissingRecord reports an action that targets a key with no record.
	ErrMissingRecord   = errors.New("action: missing record")
	// ErrStaleReference reports an entity reference that no longer resolves.
	ErrStaleReference  = errors.New("action: stale reference")
	// ErrInactive reports an action that targets a record in the wrong phase.
	ErrInactive        = errors.New("action: record inactive")
)

// SchemaError describes a payload that failed validation.
type SchemaError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("action %q: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("action %q: field %s: %s", e.Kind, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrSchemaViolation.
func (e *SchemaError) Unwrap() error {
	return ErrSchemaViolation
}

// Required fails when a string field is empty.
func Required(field string, value string) error {
	if value == "" {
		return &SchemaError{Field: field, Reason: "required"}
	}
	return nil
}

// Finite fails on NaN or infinite values.
func Finite(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &SchemaError{Field: field, Reason: "must be finite"}
	}
	return nil
}

// NonNegative fails on values below zero.
func NonNegative[T ~int | ~int64 | ~float64](field string, value T) error {
	if value < 0 {
		return &SchemaError{Field: field, Reason: "must not be negative"}
	}
	return nil
}

// OneOf fails when value is not in allowed.
func OneOf[T comparable](field string, value T, allowed ...T) error {
	for _, candidate := range allowed {
		if candidate == value {
			return nil
		}
	}
	return &SchemaError{Field: field, Reason: fmt.Sprintf("unexpected value %v", value)}
}
