package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss signals an absent cache entry; never surfaced to callers.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// ErrGrouplessUser means no group id could be resolved for the user, so
	// there is no schedule to fetch at all.
	ErrGrouplessUser = New("GROUPLESS_USER", http.StatusUnprocessableEntity, "user has no resolvable group")

	// ErrUpstreamSync covers any failure talking to the scheduling source.
	// The week cache falls back to stale data when it sees this.
	ErrUpstreamSync = New("UPSTREAM_SYNC_FAILED", http.StatusBadGateway, "upstream synchronization failed")

	// ErrSessionExpired asks the end user to re-authenticate with the source.
	ErrSessionExpired = New("SESSION_EXPIRED", http.StatusUnauthorized, "session expired, try re-authenticating")

	// ErrRendererTransient marks a renderer failure worth one retry after a
	// forced process restart.
	ErrRendererTransient = New("RENDERER_TRANSIENT", http.StatusServiceUnavailable, "renderer temporarily unavailable")

	// ErrRendererFatal is a renderer failure that survived the retry.
	ErrRendererFatal = New("RENDERER_FATAL", http.StatusInternalServerError, "renderer failed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
