package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStorage marks a failed read or write against the ledger.
	ErrStorage = errors.New("storage unavailable")

	// Account errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLastAccount        = errors.New("cannot delete the last account")
)
