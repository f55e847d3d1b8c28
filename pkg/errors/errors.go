package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeEligibility    ErrorType = "eligibility"
	ErrorTypeVoting         ErrorType = "voting"
	ErrorTypeLedger         ErrorType = "ledger"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeInternal       ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewEligibilityError is returned when a credential cannot be issued or
// presented
func NewEligibilityError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeEligibility,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Internal:   internal,
	}
}

// NewVotingError is returned when a vote is rejected
func NewVotingError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeVoting,
		Message:    message,
		StatusCode: http.StatusConflict,
		Internal:   internal,
	}
}

// NewLedgerError wraps a failed ledger interaction. Retryable failures map to
// 503 so clients know to try again.
func NewLedgerError(message string, internal error, retryable bool) *AppError {
	status := http.StatusBadGateway
	if retryable {
		status = http.StatusServiceUnavailable
	}
	return &AppError{
		Type:       ErrorTypeLedger,
		Message:    message,
		StatusCode: status,
		Internal:   internal,
		Details:    map[string]interface{}{"retryable": retryable},
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// As extracts an *AppError from err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err carries an AppError of the given type
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Error struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}

// NewErrorResponse builds the response body for err
func NewErrorResponse(err *AppError, requestID, timestamp string) ErrorResponse {
	var resp ErrorResponse
	resp.Error.Type = err.Type
	resp.Error.Message = err.Message
	resp.Error.Details = err.Details
	resp.Error.RequestID = requestID
	resp.Error.Timestamp = timestamp
	return resp
}
