package eventstream

import "errors"

// ErrNilNodeEvent indicates a nil node event payload was provided to a publisher.
var ErrNilNodeEvent = errors.New("nil node event")
