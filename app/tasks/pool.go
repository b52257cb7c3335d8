package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/product-comb/app/metrics"
	"github.com/lysyi3m/product-comb/app/queue"
)

// ErrBrokerLost is returned by Run when the broker keeps failing.
var ErrBrokerLost = errors.New("broker connection lost")

const (
	DefaultWorkerCount       = 4
	DefaultMaxBrokerFailures = 10
	DefaultBrokerBackoff     = time.Second
)

// Pool runs a fixed number of workers against one queue.
type Pool struct {
	client            *queue.Client
	queue             queue.Name
	handler           HandlerFunc
	workerCount       int
	maxBrokerFailures int
	backoff           time.Duration

	mu       sync.Mutex
	failures int
}

type PoolOption func(*Pool)

func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithBrokerFailures sets how many consecutive receive errors the pool
// tolerates and how long it waits after each.
func WithBrokerFailures(max int, backoff time.Duration) PoolOption {
	return func(p *Pool) {
		p.maxBrokerFailures = max
		p.backoff = backoff
	}
}

func NewPool(client *queue.Client, name queue.Name, handler HandlerFunc, opts ...PoolOption) *Pool {
	p := &Pool{
		client:            client,
		queue:             name,
		handler:           handler,
		workerCount:       DefaultWorkerCount,
		maxBrokerFailures: DefaultMaxBrokerFailures,
		backoff:           DefaultBrokerBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Queue() queue.Name {
	return p.queue
}

// Run blocks until ctx is cancelled or the broker is lost. Jobs in progress
// when ctx ends are finished and settled before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	slog.Info("Worker pool started", "queue", p.queue, "workers", p.workerCount)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := p.worker(ctx, id); err != nil {
				cancel(err)
			}
		}(i)
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil && errors.Is(err, ErrBrokerLost) {
		return err
	}

	slog.Info("Worker pool stopped", "queue", p.queue)
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) error {
	for {
		d, err := p.client.Receive(ctx, p.queue)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, queue.ErrClosed) {
				return fmt.Errorf("%w: %v", ErrBrokerLost, err)
			}

			// Back off and give up after too many failures in a row
			n := p.brokerFailed()
			slog.Warn("Failed to receive job", "queue", p.queue, "worker_id", id, "consecutive_failures", n, "error", err)
			if n >= p.maxBrokerFailures {
				return fmt.Errorf("%w: %d consecutive failures on %s: %v", ErrBrokerLost, n, p.queue, err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		p.brokerRecovered()
		p.executeJob(ctx, id, d)
	}
}

func (p *Pool) brokerFailed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures++
	return p.failures
}

func (p *Pool) brokerRecovered() {
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
}

func (p *Pool) executeJob(ctx context.Context, workerID int, d *queue.Delivery) {
	start := time.Now()

	// Shutdown does not interrupt a running job; its own timeout does.
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = queue.DefaultTimeout
	}
	base := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(base, timeout)
	err := p.handler(jobCtx, d)
	if err == nil && jobCtx.Err() != nil {
		err = fmt.Errorf("job exceeded timeout of %s", timeout)
	}
	cancel()

	// Record metrics
	duration := time.Since(start)
	metrics.JobDuration.WithLabelValues(string(p.queue)).Observe(duration.Seconds())

	if err != nil {
		slog.Error("Job execution failed", "queue", p.queue, "worker_id", workerID, "job_id", d.ID, "attempt", d.Attempt, "duration", duration, "error", err)
	}

	state, settleErr := p.client.Settle(base, d, err)
	if settleErr != nil {
		// The lease expires and the broker redelivers.
		slog.Error("Failed to settle job", "queue", p.queue, "job_id", d.ID, "error", settleErr)
		return
	}

	slog.Debug("Job settled", "queue", p.queue, "worker_id", workerID, "job_id", d.ID, "attempt", d.Attempt, "state", state, "duration", duration)
}

// RunPools runs every pool until ctx is cancelled or one of them loses the broker.
func RunPools(ctx context.Context, pools ...*Pool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(pools))
	for _, p := range pools {
		go func(p *Pool) {
			err := p.Run(ctx)
			if err != nil {
				cancel()
			}
			errs <- err
		}(p)
	}

	var first error
	for range pools {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
