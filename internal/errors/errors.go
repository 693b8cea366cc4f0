package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// CodeUserNotFound marks an update aimed at an id that does not exist.
	CodeUserNotFound = "USER_NOT_FOUND"
	// CodeStorageFailure marks a persistence failure surfaced by the service.
	CodeStorageFailure = "STORAGE_FAILURE"
)

var (
	// ErrMissingID is returned when an entity without a primary key is updated.
	ErrMissingID = errors.New("entity has no identifier")
	// ErrUserNotFound matches any ServiceError raised for a missing update target.
	ErrUserNotFound = &ServiceError{Code: CodeUserNotFound, Message: "user not found"}
)

// StorageError wraps a failure from the persistence layer with the entity and
// operation it happened in.
type StorageError struct {
	Entity string
	Op     string
	ID     any
	Err    error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("error %s %s", e.Op, e.Entity)
	if e.ID != nil {
		msg += fmt.Sprintf(" id=%v", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError. id may be nil for operations that
// do not target a single record.
func NewStorageError(entity, op string, id any, err error) *StorageError {
	return &StorageError{Entity: entity, Op: op, ID: id, Err: err}
}

// ServiceError is the only failure type the service layer lets escape.
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewServiceError translates a storage failure into a ServiceError.
func NewServiceError(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeStorageFailure, Message: message, Err: err}
}

// NewUserNotFound builds the error returned when an update target is missing.
func NewUserNotFound(id uint) *ServiceError {
	return &ServiceError{
		Code:    CodeUserNotFound,
		Message: fmt.Sprintf("user with id=%d not found", id),
	}
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	if errors.Is(err, ErrUserNotFound) {
		return NewHTTPError(http.StatusNotFound, err.Error(), CodeUserNotFound)
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return NewHTTPError(http.StatusInternalServerError, svcErr.Error(), svcErr.Code)
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
