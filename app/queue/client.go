package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/product-comb/app/metrics"
)

var errLeaseExhausted = errors.New("lease expired on the final attempt")

// Client is the producer and consumer side of the pipeline queues.
type Client struct {
	broker   Broker
	sink     DeadLetterSink
	policies map[Name]Policy
	now      func() time.Time
}

type ClientOption func(*Client)

func WithDeadLetterSink(sink DeadLetterSink) ClientOption {
	return func(c *Client) { c.sink = sink }
}

// WithPolicy replaces the default delivery policy of one queue.
func WithPolicy(name Name, p Policy) ClientOption {
	return func(c *Client) { c.policies[name] = p }
}

func NewClient(broker Broker, opts ...ClientOption) *Client {
	c := &Client{
		broker:   broker,
		policies: make(map[Name]Policy),
		now:      time.Now,
	}
	for _, n := range Names {
		c.policies[n] = DefaultPolicy()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Broker() Broker {
	return c.broker
}

// Enqueue publishes payload on the named queue. Options override the
// queue's policy for this job only.
func (c *Client) Enqueue(ctx context.Context, name Name, payload any, opts ...Option) (JobHandle, error) {
	policy, ok := c.policies[name]
	if !ok {
		return JobHandle{}, fmt.Errorf("unknown queue %q", name)
	}
	for _, opt := range opts {
		opt(&policy)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}

	env := &Envelope{
		ID:            uuid.NewString(),
		Queue:         name,
		Payload:       data,
		Timeout:       policy.Timeout,
		MaxRetries:    policy.MaxRetries,
		RetryInterval: policy.RetryInterval,
		ResultTTL:     policy.ResultTTL,
		EnqueuedAt:    c.now().UTC(),
	}

	if err := c.broker.Publish(ctx, env); err != nil {
		return JobHandle{}, err
	}

	metrics.JobsEnqueued.WithLabelValues(string(name)).Inc()
	slog.Debug("Job enqueued", "queue", name, "job_id", env.ID)

	return JobHandle{ID: env.ID, Queue: name}, nil
}

func (c *Client) EnqueueIngest(ctx context.Context, p IngestPayload) (JobHandle, error) {
	return c.Enqueue(ctx, Ingest, p)
}

func (c *Client) EnqueueExtract(ctx context.Context, p ExtractPayload) (JobHandle, error) {
	return c.Enqueue(ctx, Extract, p)
}

func (c *Client) EnqueueClassify(ctx context.Context, p ClassifyPayload) (JobHandle, error) {
	return c.Enqueue(ctx, Classify, p)
}

// Receive blocks until a delivery is available. Deliveries whose final
// attempt already ran out its lease are dead-lettered here and skipped.
func (c *Client) Receive(ctx context.Context, name Name) (*Delivery, error) {
	for {
		d, err := c.broker.Receive(ctx, name)
		if err != nil {
			return nil, err
		}

		if d.Attempt > d.MaxRetries+1 {
			if _, err := c.fail(ctx, d, errLeaseExhausted); err != nil {
				return nil, err
			}
			continue
		}

		slog.Debug("Job received", "queue", name, "job_id", d.ID, "attempt", d.Attempt)
		return d, nil
	}
}

// Consume yields deliveries until ctx ends. A broker error is yielded once
// and ends the sequence.
func (c *Client) Consume(ctx context.Context, name Name) iter.Seq2[*Delivery, error] {
	return func(yield func(*Delivery, error) bool) {
		for {
			d, err := c.Receive(ctx, name)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Settle records the outcome of running d. A nil handlerErr completes the
// job. Terminal errors and failures on the last allowed attempt go to the
// dead-letter sink; anything else is retried after the retry interval.
func (c *Client) Settle(ctx context.Context, d *Delivery, handlerErr error) (State, error) {
	if handlerErr == nil {
		if err := c.broker.Ack(ctx, d); err != nil {
			return StateInProgress, err
		}
		metrics.JobsTotal.WithLabelValues(string(d.Queue), string(StateCompleted)).Inc()
		return StateCompleted, nil
	}

	if IsTerminal(handlerErr) || d.Exhausted() {
		return c.fail(ctx, d, handlerErr)
	}

	if err := c.broker.Retry(ctx, d); err != nil {
		return StateInProgress, err
	}

	metrics.JobsTotal.WithLabelValues(string(d.Queue), string(StateFailedRetryable)).Inc()
	slog.Warn("Job failed, will retry",
		"queue", d.Queue,
		"job_id", d.ID,
		"attempt", d.Attempt,
		"max_retries", d.MaxRetries,
		"retry_in", d.RetryInterval,
		"error", handlerErr)

	return StateFailedRetryable, nil
}

func (c *Client) fail(ctx context.Context, d *Delivery, cause error) (State, error) {
	if c.sink != nil {
		if err := c.sink.Bury(ctx, d, cause); err != nil {
			return StateInProgress, fmt.Errorf("failed to dead-letter job %s: %w", d.ID, err)
		}
	}

	if err := c.broker.Ack(ctx, d); err != nil {
		return StateInProgress, err
	}

	metrics.JobsTotal.WithLabelValues(string(d.Queue), string(StateFailedTerminal)).Inc()
	slog.Error("Job failed permanently",
		"queue", d.Queue,
		"job_id", d.ID,
		"attempt", d.Attempt,
		"terminal", IsTerminal(cause),
		"dead_lettered", c.sink != nil,
		"error", cause)

	return StateFailedTerminal, nil
}

// Requeue publishes a previously stored payload as a fresh job.
func (c *Client) Requeue(ctx context.Context, name Name, payload json.RawMessage) (JobHandle, error) {
	return c.Enqueue(ctx, name, payload)
}

func (c *Client) Stats(ctx context.Context) ([]Stats, error) {
	out := make([]Stats, 0, len(Names))
	for _, n := range Names {
		s, err := c.broker.Stats(ctx, n)
		if err != nil {
			return nil, err
		}
		metrics.QueueDepth.WithLabelValues(string(n)).Set(float64(s.Depth))
		out = append(out, s)
	}
	return out, nil
}
