// Package apierr holds the gateway's error taxonomy. Every failure that
// reaches the HTTP edge is resolved to a status code and a message through
// Resolve, and written as {"error": message}.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind string

const (
	KindBadRequest      Kind = "bad_request"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindUpstream        Kind = "upstream"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// Error is a terminal request failure. Status is the HTTP status relayed to
// the caller; Err is the optional underlying cause.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: msg}
}

// Upstream carries a backend failure. status is passed through to the caller.
func Upstream(status int, msg string) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: msg}
}

func Unavailable(msg string, err error) *Error {
	return &Error{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// Resolve maps any error to a status and message. Errors outside the
// taxonomy are reported as 500 with their own text.
func Resolve(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Message
	}
	return http.StatusInternalServerError, err.Error()
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// WriteJSON writes {"error": msg} with the given status.
func WriteJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Write resolves err and writes it as a JSON error body.
func Write(w http.ResponseWriter, err error) {
	status, msg := Resolve(err)
	WriteJSON(w, status, msg)
}
