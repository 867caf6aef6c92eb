package core

import "fmt"

// Error codes returned by the orchestration core.
const (
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeValidation = "validation_error"
	ErrCodeInternal   = "internal_error"
)

// Error is the structured error type shared across subsystems.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewNotFoundError creates an error for a missing resource.
func NewNotFoundError(resourceType, resourceID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found.", resourceType, resourceID),
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
	}
}

// NewConflictError creates an error for an operation invalid in the current
// state.
func NewConflictError(message string, details map[string]any) *Error {
	return &Error{Code: ErrCodeConflict, Message: message, Details: details}
}

// NewValidationError creates an error for malformed input.
func NewValidationError(message string, details map[string]any) *Error {
	return &Error{Code: ErrCodeValidation, Message: message, Details: details}
}

// NewInternalError creates an error for an unexpected failure.
func NewInternalError(message string) *Error {
	return &Error{Code: ErrCodeInternal, Message: message}
}
