package queue

import "context"

// Broker moves envelopes between producers and consumers. Receive blocks
// until a delivery is available or ctx ends. A delivery that is neither
// acked nor retried within its lease is handed out again with a higher
// attempt count.
type Broker interface {
	Publish(ctx context.Context, env *Envelope) error
	Receive(ctx context.Context, queue Name) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Retry(ctx context.Context, d *Delivery) error
	Stats(ctx context.Context, queue Name) (Stats, error)
	Close() error
}

// DeadLetterSink stores jobs that will not be retried anymore.
type DeadLetterSink interface {
	Bury(ctx context.Context, d *Delivery, cause error) error
}
