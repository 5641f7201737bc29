package vecstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates a vector record lookup by id matched nothing.
var ErrNotFound = errors.New("vector record not found")

// ErrConnection indicates the backing vector store could not be reached.
var ErrConnection = errors.New("vector store connection failed")

// UnknownCollectionError is returned when an operation names a collection
// the router was not configured with. Known carries the configured
// collection names so the message is actionable.
type UnknownCollectionError struct {
	Name  string
	Known []string
}

func (e *UnknownCollectionError) Error() string {
	return fmt.Sprintf("unknown collection %q, available: [%s]", e.Name, strings.Join(e.Known, " "))
}

// UnsupportedFilterError is returned when a canonical filter has no flat
// equivalent. Failing closed beats silently matching too much.
type UnsupportedFilterError struct {
	Reason string
}

func (e *UnsupportedFilterError) Error() string {
	return fmt.Sprintf("unsupported filter: %s", e.Reason)
}
