package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func publish(t *testing.T, b Broker, env Envelope) {
	t.Helper()
	if err := b.Publish(context.Background(), &env); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
}

func TestMemoryBrokerFIFO(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		publish(t, b, Envelope{ID: id, Queue: Ingest, Timeout: time.Minute})
	}

	for _, want := range []string{"a", "b", "c"} {
		d, err := b.Receive(ctx, Ingest)
		if err != nil {
			t.Fatalf("Receive returned error: %v", err)
		}
		if d.ID != want {
			t.Errorf("Expected %s, got %s", want, d.ID)
		}
		b.Ack(ctx, d)
	}
}

func TestMemoryBrokerQueuesAreSeparate(t *testing.T) {
	b := NewMemoryBroker()
	publish(t, b, Envelope{ID: "x", Queue: Extract, Timeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx, Classify); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Classify should be empty, got %v", err)
	}
}

func TestMemoryBrokerReceiveBlocksUntilPublish(t *testing.T) {
	b := NewMemoryBroker()

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Publish(context.Background(), &Envelope{ID: "late", Queue: Classify, Timeout: time.Minute})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := b.Receive(ctx, Classify)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if d.ID != "late" {
		t.Errorf("Expected late, got %s", d.ID)
	}
}

func TestMemoryBrokerLeaseExpiryRedelivers(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	publish(t, b, Envelope{ID: "slow", Queue: Extract, Timeout: 20 * time.Millisecond, RetryInterval: 10 * time.Millisecond})

	first, err := b.Receive(ctx, Extract)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	second, err := b.Receive(waitCtx, Extract)
	if err != nil {
		t.Fatalf("Expected redelivery, got %v", err)
	}
	if second.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", second.Attempt)
	}

	if err := b.Ack(ctx, first); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Expired receipt should be unknown, got %v", err)
	}
	if err := b.Ack(ctx, second); err != nil {
		t.Errorf("Ack returned error: %v", err)
	}
}

func TestMemoryBrokerRetryDelay(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	publish(t, b, Envelope{ID: "r", Queue: Ingest, Timeout: time.Minute, RetryInterval: 40 * time.Millisecond})

	d, _ := b.Receive(ctx, Ingest)
	if err := b.Retry(ctx, d); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}

	stats, _ := b.Stats(ctx, Ingest)
	if stats.Depth != 1 || stats.InFlight != 0 {
		t.Errorf("Expected delayed job counted in depth, got %+v", stats)
	}

	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	again, err := b.Receive(waitCtx, Ingest)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Retry delivered too early after %v", elapsed)
	}
	if again.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", again.Attempt)
	}
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker()

	done := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background(), Ingest)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}

	if err := b.Publish(context.Background(), &Envelope{Queue: Ingest}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close should fail, got %v", err)
	}
}
