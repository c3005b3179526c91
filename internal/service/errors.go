package service

import "errors"

// ErrNotFound indicates the requested resource was not found.
var ErrNotFound = errors.New("not found")

// ErrForbidden indicates the caller may not act on the resource (HTTP 403).
var ErrForbidden = errors.New("forbidden")

// ErrMirrorMissing indicates a role has no row in the roles index. The
// operation is refused and nothing is changed; RepairMirrors restores it.
var ErrMirrorMissing = errors.New("role has no roles index row")

// ValidationError represents a bad-request condition (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError represents a conflict condition (HTTP 409).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
