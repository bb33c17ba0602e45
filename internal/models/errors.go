package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnauthenticated = errors.New("authentication failed")
	ErrForbidden       = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid request")
	ErrPersistence     = errors.New("persistence failure")
	ErrUpload          = errors.New("upload failed")
	ErrRateLimited     = errors.New("rate limited")
)

// ErrorKind is the wire code of an error surfaced to a client.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindValidation     ErrorKind = "validation"
	KindPersistence    ErrorKind = "persistence"
	KindUpload         ErrorKind = "upload"
	KindRateLimited    ErrorKind = "rate_limited"
)

// Classify maps an error chain to its kind. Anything unrecognised is treated as
// a persistence failure so its details never reach the client.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalid):
		return KindValidation
	case errors.Is(err, ErrUpload):
		return KindUpload
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindPersistence
	}
}

// PublicMessage is the text shown to the client for err.
func PublicMessage(err error) string {
	if Classify(err) == KindPersistence {
		return "internal error"
	}
	return err.Error()
}

// Invalidf builds a validation error.
func Invalidf(format string, args ...interface{}) error {
	return errors.Wrap(ErrInvalid, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrap(ErrNotFound, fmt.Sprintf(format, args...))
}

// Forbiddenf builds an authorization error.
func Forbiddenf(format string, args ...interface{}) error {
	return errors.Wrap(ErrForbidden, fmt.Sprintf(format, args...))
}

// Persistence wraps a storage driver failure. Errors that already carry a kind
// pass through untouched.
func Persistence(err error, op string) error {
	if err == nil {
		return nil
	}
	if Classify(err) != KindPersistence || errors.Is(err, ErrPersistence) {
		return err
	}
	return errors.Wrapf(ErrPersistence, "%s: %v", op, err)
}
