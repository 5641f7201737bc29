package graph

import "errors"

// ErrBackendUnavailable wraps connection and transport failures so callers
// can distinguish infrastructure faults from domain errors.
var ErrBackendUnavailable = errors.New("graph backend unavailable")

// NotFoundError is returned by write paths when the target node doesn't
// exist. Read paths return nil results instead.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "node not found"
	}

	return "node not found: " + e.ID
}

// DuplicateIDError is returned when a create collides with an existing id.
type DuplicateIDError struct {
	ID string
}

func (e DuplicateIDError) Error() string {
	return "node already exists: " + e.ID
}

// InvalidScopeError is returned when a memory-type label is not one of the
// recognized scopes.
type InvalidScopeError struct {
	Scope string
}

func (e InvalidScopeError) Error() string {
	return "invalid memory scope: " + e.Scope
}
