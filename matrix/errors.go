package matrix

import (
	"errors"
	"fmt"
)

// Error is a structured error response from the homeserver. Callers can
// use errors.As to extract the error code:
//
//	var matrixErr *matrix.Error
//	if errors.As(err, &matrixErr) && matrixErr.Code == matrix.ErrCodeForbidden { ... }
type Error struct {
	// Code is the Matrix error code (e.g. "M_FORBIDDEN", "M_NOT_FOUND").
	Code string `json:"errcode"`
	// Message is the human-readable description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
)

// IsError checks whether err is a *Error with the given error code.
func IsError(err error, code string) bool {
	var matrixErr *Error
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// JoinError reports a failed room join: the symbolic reference could not
// be resolved by the server, or the server refused the join.
type JoinError struct {
	// Ref is the symbolic reference the join was attempted with.
	Ref string
	Err error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("matrix: join %q failed: %v", e.Ref, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}
