package app_error

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuth           Kind = "auth"
	KindAuthz          Kind = "authz"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindTransientStore Kind = "transient_store"
	KindValidation     Kind = "validation"
	KindRateLimited    Kind = "rate_limited"
	KindInternal       Kind = "internal"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	cause   error
}

func (e AppError) Error() string {
	return e.Message
}

func (e AppError) Unwrap() error {
	return e.cause
}

func (e AppError) JSON(w http.ResponseWriter) error {
	return json.NewEncoder(w).Encode(e)
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kindFromCode(code),
		Message: msg,
		Field:   field,
	}
}

// Wrap keeps err reachable through errors.Is/As while presenting msg to clients.
func (e *AppError) Wrap(err error) *AppError {
	e.cause = err
	return e
}

func Auth(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Kind: KindAuth, Message: msg, Field: "credential"}
}

func Authz(msg, field string) *AppError {
	return &AppError{Code: http.StatusForbidden, Kind: KindAuthz, Message: msg, Field: field}
}

func NotFound(msg, field string) *AppError {
	return &AppError{Code: http.StatusNotFound, Kind: KindNotFound, Message: msg, Field: field}
}

func Conflict(msg, field string) *AppError {
	return &AppError{Code: http.StatusConflict, Kind: KindConflict, Message: msg, Field: field}
}

func TransientStore(msg string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Kind: KindTransientStore, Message: msg, Field: "store", cause: err}
}

func Validation(msg, field string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Kind: KindValidation, Message: msg, Field: field}
}

func RateLimited(msg string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Kind: KindRateLimited, Message: msg}
}

// From returns the AppError inside err, or an internal error wrapping it.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: http.StatusInternalServerError, Kind: KindInternal, Message: "internal error", cause: err}
}

func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

func kindFromCode(code int) Kind {
	switch code {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		return KindAuthz
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusServiceUnavailable:
		return KindTransientStore
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindInternal
	}
}
