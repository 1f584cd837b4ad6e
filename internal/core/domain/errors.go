package domain

import (
	"errors"
	"fmt"
)

var ErrSessionInvalid = errors.New("session invalid or expired")
var ErrNoSession = errors.New("no active session")
var ErrMemberNumberMissing = errors.New("member number not found")
var ErrMemberNotFound = errors.New("member not found")
var ErrQueryFailed = errors.New("member query failed")
var ErrInvalidCredentials = errors.New("invalid credentials")

// QueryError wraps a transport or permission failure of the member query.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", ErrQueryFailed, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrQueryFailed) hold for every QueryError.
func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }
