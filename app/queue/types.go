package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

type Name string

const (
	Ingest   Name = "ingest"
	Extract  Name = "extract"
	Classify Name = "classify"
)

// Names lists the pipeline queues in stage order.
var Names = []Name{Ingest, Extract, Classify}

func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown queue %q", s)
}

type State string

const (
	StateEnqueued        State = "ENQUEUED"
	StateInProgress      State = "IN_PROGRESS"
	StateCompleted       State = "COMPLETED"
	StateFailedRetryable State = "FAILED_RETRYABLE"
	StateFailedTerminal  State = "FAILED_TERMINAL"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultMaxRetries    = 5
	DefaultRetryInterval = 30 * time.Second
	DefaultResultTTL     = time.Second
)

// Policy is the delivery contract attached to every job.
type Policy struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	ResultTTL     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Timeout:       DefaultTimeout,
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
		ResultTTL:     DefaultResultTTL,
	}
}

type Option func(*Policy)

func WithTimeout(d time.Duration) Option {
	return func(p *Policy) { p.Timeout = d }
}

func WithMaxRetries(n int) Option {
	return func(p *Policy) { p.MaxRetries = n }
}

func WithRetryInterval(d time.Duration) Option {
	return func(p *Policy) { p.RetryInterval = d }
}

func WithResultTTL(d time.Duration) Option {
	return func(p *Policy) { p.ResultTTL = d }
}

// Envelope is what travels through the broker.
type Envelope struct {
	ID            string          `json:"id"`
	Queue         Name            `json:"queue"`
	Payload       json.RawMessage `json:"payload"`
	Timeout       time.Duration   `json:"timeout"`
	MaxRetries    int             `json:"max_retries"`
	RetryInterval time.Duration   `json:"retry_interval"`
	ResultTTL     time.Duration   `json:"result_ttl"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
}

// Lease is how long a delivery may stay unsettled before the broker hands it
// to another consumer.
func (e *Envelope) Lease() time.Duration {
	return max(e.Timeout, e.RetryInterval)
}

func (e *Envelope) Policy() Policy {
	return Policy{
		Timeout:       e.Timeout,
		MaxRetries:    e.MaxRetries,
		RetryInterval: e.RetryInterval,
		ResultTTL:     e.ResultTTL,
	}
}

// Delivery is one attempt at running a job. Attempt starts at 1 and is
// counted by the broker.
type Delivery struct {
	Envelope
	Attempt int
	Receipt string
}

// Decode unmarshals the payload into v. A payload that does not decode is
// a terminal failure.
func (d *Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return Terminal(fmt.Errorf("failed to decode %s payload: %w", d.Queue, err))
	}
	return nil
}

// Exhausted reports whether the attempt has used up the retry budget.
func (d *Delivery) Exhausted() bool {
	return d.Attempt > d.MaxRetries
}

type JobHandle struct {
	ID    string `json:"id"`
	Queue Name   `json:"queue"`
}

type IngestPayload struct {
	Table string          `json:"table_name"`
	Page  product.RawPage `json:"raw_page"`
}

type ExtractPayload struct {
	Table string `json:"table_name"`
	RowID int64  `json:"row_id"`
}

type ClassifyPayload struct {
	RowID int64 `json:"row_id"`
}

type Stats struct {
	Queue    Name  `json:"queue"`
	Depth    int64 `json:"depth"`
	InFlight int64 `json:"in_flight"`
}
