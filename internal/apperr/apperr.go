// Package apperr defines the error taxonomy consumed across the core: every
// component returns one of these kinds instead of a raw error, so the
// socket layer can translate failures into {success:false, message}
// responses without knowing which component produced them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract error kinds the core distinguishes.
type Kind string

const (
	Unauthenticated  Kind = "UNAUTHENTICATED"
	Unauthorized     Kind = "UNAUTHORIZED"
	NotFound         Kind = "NOT_FOUND"
	NotYourTurn      Kind = "NOT_YOUR_TURN"
	IllegalMove      Kind = "ILLEGAL_MOVE"
	Finalized        Kind = "FINALIZED"
	BadRequest       Kind = "BAD_REQUEST"
	Conflict         Kind = "CONFLICT"
	StoreUnavailable Kind = "STORE_UNAVAILABLE"
	BusUnavailable   Kind = "BUS_UNAVAILABLE"
	Internal         Kind = "INTERNAL"
)

// httpStatus mirrors the teacher's categorizeError status table.
var httpStatus = map[Kind]int{
	Unauthenticated:  http.StatusUnauthorized,
	Unauthorized:     http.StatusForbidden,
	NotFound:         http.StatusNotFound,
	NotYourTurn:      http.StatusConflict,
	IllegalMove:      http.StatusBadRequest,
	Finalized:        http.StatusConflict,
	BadRequest:       http.StatusBadRequest,
	Conflict:         http.StatusConflict,
	StoreUnavailable: http.StatusServiceUnavailable,
	BusUnavailable:   http.StatusServiceUnavailable,
	Internal:         http.StatusInternalServerError,
}

// AppError is the concrete error type every component returns.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status the admin surface maps this kind to.
func (e *AppError) StatusCode() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AddDetail attaches a structured detail and returns e for chaining.
func (e *AppError) AddDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// New constructs an AppError of the given kind with a message.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap constructs an AppError of the given kind wrapping an underlying
// cause, preserving it for errors.Is/As and logging.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Convenience constructors, one per kind, mirroring the teacher's
// BadRequest/Unauthorized/NotFound/Internal/etc. family.

func NewUnauthenticated(message string) *AppError { return New(Unauthenticated, message) }
func NewUnauthorized(message string) *AppError    { return New(Unauthorized, message) }
func NewNotFound(message string) *AppError        { return New(NotFound, message) }
func NewNotYourTurn(message string) *AppError     { return New(NotYourTurn, message) }
func NewIllegalMove(message string) *AppError     { return New(IllegalMove, message) }
func NewFinalized(message string) *AppError       { return New(Finalized, message) }
func NewBadRequest(message string) *AppError      { return New(BadRequest, message) }
func NewConflict(message string) *AppError        { return New(Conflict, message) }

func NewStoreUnavailable(cause error) *AppError {
	return Wrap(StoreUnavailable, "store did not respond in time", cause)
}

func NewBusUnavailable(cause error) *AppError {
	return Wrap(BusUnavailable, "event bus did not respond in time", cause)
}

func NewInternal(cause error) *AppError {
	return Wrap(Internal, "internal error", cause)
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal for unrecognized
// errors so every path still produces a client-safe message.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// ClientMessage returns the message safe to echo back to the socket that
// issued the failing command, per the propagation policy: validation and
// per-player contract errors are returned on the originating socket only.
func ClientMessage(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}
