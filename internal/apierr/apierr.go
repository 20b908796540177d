package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
	Fields map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Validation carries field level messages back to the caller.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "validation_error", Err: errors.New(msg), Fields: fields}
}

func Invalid(msg string) *Error {
	return Validation(msg, nil)
}

// Unauthenticated never says which credential was wrong.
func Unauthenticated() *Error {
	return New(http.StatusUnauthorized, "invalid_credentials", errors.New("invalid credentials"))
}

func Forbidden() *Error {
	return New(http.StatusForbidden, "forbidden", errors.New("you do not have permission to perform this action"))
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, "not_found", fmt.Errorf("%s not found", what))
}

func Conflict(msg string) *Error {
	return New(http.StatusConflict, "conflict", errors.New(msg))
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
