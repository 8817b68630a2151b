package utils

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput indicates malformed or missing user input
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates unknown song
	ErrNotFound = errors.New("not found")
	// ErrNotPaid indicates access to paid content before payment
	ErrNotPaid = errors.New("not paid")
	// ErrInvalidSignature indicates webhook authentication failure
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrExpired indicates token past its validity window
	ErrExpired = errors.New("expired")
	// ErrMismatch indicates token issued for another song
	ErrMismatch = errors.New("token mismatch")
	// ErrInvalidToken indicates a token that can't be parsed or verified
	ErrInvalidToken = errors.New("invalid token")
	// ErrConflict indicates a concurrent record update
	ErrConflict = errors.New("conflict")
	// ErrInProgress indicates the record is claimed by another running job
	ErrInProgress = errors.New("in progress")
)

// ErrUpstream wraps a failure of an external service after all retries
type ErrUpstream struct {
	Service string
	err     error
}

// NewErrUpstream creates new error
func NewErrUpstream(service string, err error) error {
	return &ErrUpstream{Service: service, err: err}
}

func (e *ErrUpstream) Error() string {
	return e.Service + " failure: " + e.err.Error()
}

func (e *ErrUpstream) Unwrap() error {
	return e.err
}

// IsUpstream returns true if any error in the chain is ErrUpstream
func IsUpstream(err error) bool {
	var ue *ErrUpstream
	return errors.As(err, &ue)
}

// HTTPCode maps an error to the http response code
func HTTPCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotPaid), errors.Is(err, ErrMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrExpired), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
