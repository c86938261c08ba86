package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrDuplicate       = errors.New("auth: already exists")
	ErrInvalid         = errors.New("auth: invalid input")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrExpired         = errors.New("auth: expired")
	ErrInactive        = errors.New("auth: inactive")
	ErrDegraded        = errors.New("auth: degraded")
	ErrInternal        = errors.New("auth: internal error")
)
