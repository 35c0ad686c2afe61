// Package services composes the catalog, validators, patch and autofix engines with the workflow store.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowguard/pkg/autofix"
	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/patch"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/validation"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNoOperations         = errors.New("at least one operation is required")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowExists = errors.New("workflow already exists")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrNoOperations) ||
		errors.Is(err, validation.ErrInvalidProfile) ||
		errors.Is(err, patch.ErrInvalidStaleSweep) ||
		errors.Is(err, autofix.ErrInvalidConfidence) ||
		errors.Is(err, autofix.ErrUnknownFixType) ||
		errors.Is(err, execution.ErrInvalidMode) ||
		errors.Is(err, persistence.ErrInvalidID) ||
		errors.Is(err, persistence.ErrInvalidSortField) ||
		errors.Is(err, persistence.ErrInvalidSortOrder) ||
		patch.IsInvalidOperation(err) ||
		catalog.IsInvalidQuery(err)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsWorkflowNotFound(err) ||
		persistence.IsExecutionNotFound(err) ||
		catalog.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// wrap attaches the operation name, classifying caller errors as validation errors.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	if IsValidationError(err) {
		return NewValidationError(op, "validation_error", err.Error(), err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
