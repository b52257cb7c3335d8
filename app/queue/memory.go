package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memMessage struct {
	env      Envelope
	attempts int
	timer    *time.Timer
}

type memQueue struct {
	ready    []*memMessage
	inflight map[string]*memMessage
	delayed  int
	notify   chan struct{}
}

// MemoryBroker keeps jobs in process memory. It honours the same lease and
// retry contract as the Redis broker and is used for tests and single
// process runs.
type MemoryBroker struct {
	mu       sync.Mutex
	queues   map[Name]*memQueue
	seq      uint64
	closed   bool
	closedCh chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:   make(map[Name]*memQueue),
		closedCh: make(chan struct{}),
	}
}

func (b *MemoryBroker) queue(name Name) *memQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memQueue{
			inflight: make(map[string]*memMessage),
			notify:   make(chan struct{}),
		}
		b.queues[name] = q
	}
	return q
}

// push must be called with b.mu held.
func (b *MemoryBroker) push(q *memQueue, m *memMessage) {
	q.ready = append(q.ready, m)
	close(q.notify)
	q.notify = make(chan struct{})
}

func (b *MemoryBroker) Publish(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.push(b.queue(env.Queue), &memMessage{env: *env})
	return nil
}

func (b *MemoryBroker) Receive(ctx context.Context, name Name) (*Delivery, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}

		q := b.queue(name)
		if len(q.ready) > 0 {
			m := q.ready[0]
			q.ready[0] = nil
			q.ready = q.ready[1:]

			m.attempts++
			b.seq++
			receipt := strconv.FormatUint(b.seq, 10)
			q.inflight[receipt] = m
			m.timer = time.AfterFunc(m.env.Lease(), func() { b.expire(name, receipt) })

			b.mu.Unlock()
			return &Delivery{Envelope: m.env, Attempt: m.attempts, Receipt: receipt}, nil
		}

		wait := q.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closedCh:
			return nil, ErrClosed
		case <-wait:
		}
	}
}

func (b *MemoryBroker) expire(name Name, receipt string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(name)
	m, ok := q.inflight[receipt]
	if !ok || b.closed {
		return
	}
	delete(q.inflight, receipt)
	b.push(q, m)
}

func (b *MemoryBroker) take(d *Delivery) (*memQueue, *memMessage, error) {
	q := b.queue(d.Queue)
	m, ok := q.inflight[d.Receipt]
	if !ok {
		return nil, nil, ErrUnknownJob
	}
	m.timer.Stop()
	delete(q.inflight, d.Receipt)
	return q, m, nil
}

func (b *MemoryBroker) Ack(ctx context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, _, err := b.take(d)
	return err
}

func (b *MemoryBroker) Retry(ctx context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, m, err := b.take(d)
	if err != nil {
		return err
	}

	if m.env.RetryInterval <= 0 {
		b.push(q, m)
		return nil
	}

	q.delayed++
	m.timer = time.AfterFunc(m.env.RetryInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		q.delayed--
		if !b.closed {
			b.push(q, m)
		}
	})
	return nil
}

func (b *MemoryBroker) Stats(ctx context.Context, name Name) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queue(name)
	return Stats{
		Queue:    name,
		Depth:    int64(len(q.ready) + q.delayed),
		InFlight: int64(len(q.inflight)),
	}, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.closedCh)
	for _, q := range b.queues {
		for _, m := range q.inflight {
			m.timer.Stop()
		}
	}
	return nil
}
