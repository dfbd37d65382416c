package api

import "net/http"

// Error categories surfaced to clients.
const (
	CategoryInput        = "INPUT_ERROR"
	CategoryConfirmation = "CONFIRMATION_REQUIRED"
	CategoryNotFound     = "NOT_FOUND"
	CategoryInternal     = "INTERNAL_ERROR"
)

// Error is the JSON error envelope all endpoints use.
type Error struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Category      string `json:"category"`
}

// NewInputError creates a 400 error for malformed parameters.
func NewInputError(message, correlationID string) *Error {
	return &Error{
		Status:        "error",
		Message:       message,
		CorrelationID: correlationID,
		Category:      CategoryInput,
	}
}

// NewConfirmationError creates a 400 error for a destructive operation
// called without its exact confirmation token.
func NewConfirmationError(message, correlationID string) *Error {
	return &Error{
		Status:        "error",
		Message:       message,
		CorrelationID: correlationID,
		Category:      CategoryConfirmation,
	}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message, correlationID string) *Error {
	return &Error{
		Status:        "error",
		Message:       message,
		CorrelationID: correlationID,
		Category:      CategoryNotFound,
	}
}

// NewInternalError creates a 500 error.
func NewInternalError(message, correlationID string) *Error {
	return &Error{
		Status:        "error",
		Message:       message,
		CorrelationID: correlationID,
		Category:      CategoryInternal,
	}
}

// WriteError writes an Error as a JSON response with the given HTTP status code.
func WriteError(w http.ResponseWriter, statusCode int, apiErr *Error) {
	WriteJSON(w, statusCode, apiErr)
}
