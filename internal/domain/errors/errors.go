package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrDuplicateEmail         = errors.New("user already exists with this email")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidToken           = errors.New("invalid token")
	ErrExpiredToken           = errors.New("expired token")
	ErrNotFound               = errors.New("resource not found")
	ErrInternal               = errors.New("internal server error")

	ErrInvalidEmail       = fmt.Errorf("%w: invalid email", ErrValidation)
	ErrInvalidPassword    = fmt.Errorf("%w: invalid password", ErrValidation)
	ErrInvalidTitle       = fmt.Errorf("%w: invalid title", ErrValidation)
	ErrInvalidDescription = fmt.Errorf("%w: invalid description", ErrValidation)
	ErrInvalidStatus      = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrBadRequest         = fmt.Errorf("%w: malformed request body", ErrValidation)

	ErrConfigFileReadFailed = errors.New("failed to read config file")
	ErrConfigParseFailed    = errors.New("failed to parse config file")
	ErrConfigInvalid        = errors.New("invalid configuration")

	ErrInvalidGzipRequest    = errors.New("invalid gzip request body")
	ErrGzipCompressionFailed = errors.New("gzip compression failed")
)

// IsUnauthenticated reports whether err belongs to the "not authenticated"
// family. Callers must not reveal which member it was.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidCredentials)
}
