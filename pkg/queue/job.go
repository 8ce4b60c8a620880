package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type pulled off the queue.
type Job interface {
	Name() string
	// Type is the message type routed to this job.
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}
