package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound                = errors.New("resource not found")
	ErrValidation              = errors.New("validation failed")
	ErrDuplicateCharacteristic = errors.New("duplicate characteristic")
	ErrConcurrencyConflict     = errors.New("resource was modified by another request")

	// ErrIntegrityViolation is a storage-level uniqueness failure. Callers see it as a duplicate.
	ErrIntegrityViolation = fmt.Errorf("%w: unique constraint violated", ErrDuplicateCharacteristic)
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource with id %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FieldViolation is a single structural problem with an input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every violation found in one input.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, msg string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Message: msg})
}

// errOrNil returns e only when it holds violations.
func (e *ValidationError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// DuplicateCharacteristicError reports the second occurrence of a (code, type) pair.
type DuplicateCharacteristicError struct {
	Code string
	Type CharacteristicType
}

func (e *DuplicateCharacteristicError) Error() string {
	return fmt.Sprintf("characteristic with code '%s' and type '%s' already exists for this resource", e.Code, e.Type)
}

func (e *DuplicateCharacteristicError) Is(target error) bool {
	return target == ErrDuplicateCharacteristic
}
