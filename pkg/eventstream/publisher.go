package eventstream

import "context"

// Publisher publishes node events to an event stream backend.
type Publisher interface {
	PublishNodeEvent(ctx context.Context, event *NodeEventV1) error
	Close() error
}
