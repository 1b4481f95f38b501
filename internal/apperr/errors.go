package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindInput              Kind = "input_error"
	KindIO                 Kind = "io_error"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation_error"
)

// Error is a structured failure: a kind plus a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Input reports missing, unreadable or unparseable input.
func Input(err error, format string, args ...any) error {
	return newErr(KindInput, err, format, args...)
}

// IO reports a failure while producing output (archive assembly, disk writes).
func IO(err error, format string, args ...any) error {
	return newErr(KindIO, err, format, args...)
}

// BackendUnavailable reports an unreachable or failing external service.
func BackendUnavailable(err error, format string, args ...any) error {
	return newErr(KindBackendUnavailable, err, format, args...)
}

func NotFound(format string, args ...any) error {
	return newErr(KindNotFound, nil, format, args...)
}

func Validation(format string, args ...any) error {
	return newErr(KindValidation, nil, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the message of the first *Error in the chain, falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func IsInput(err error) bool              { return KindOf(err) == KindInput }
func IsIO(err error) bool                 { return KindOf(err) == KindIO }
func IsBackendUnavailable(err error) bool { return KindOf(err) == KindBackendUnavailable }
func IsNotFound(err error) bool           { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool         { return KindOf(err) == KindValidation }

// HTTPStatus maps an error to the status code the REST layer answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput, KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP answers with {"error": kind, "message": msg} and the status from
// HTTPStatus. Errors without a kind are reported as io_error.
func WriteHTTP(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	if kind == "" {
		kind = KindIO
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(kind), "message": MessageOf(err)})
}
