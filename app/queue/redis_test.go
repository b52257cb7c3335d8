package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBroker(client, RedisConfig{
		Prefix:       "test",
		Consumer:     "worker-1",
		Block:        50 * time.Millisecond,
		ReclaimEvery: time.Millisecond,
	})
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBrokerPublishReceiveAck(t *testing.T) {
	b, mr := newTestRedisBroker(t)
	c := NewClient(b)
	ctx := context.Background()

	h, err := c.EnqueueExtract(ctx, ExtractPayload{Table: "otto_DE", RowID: 9})
	if err != nil {
		t.Fatalf("EnqueueExtract returned error: %v", err)
	}

	stats, err := b.Stats(ctx, Extract)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Depth != 1 || stats.InFlight != 0 {
		t.Errorf("Expected 1 waiting job, got %+v", stats)
	}

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	d, err := c.Receive(rctx, Extract)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if d.ID != h.ID || d.Attempt != 1 {
		t.Errorf("Unexpected delivery id=%s attempt=%d", d.ID, d.Attempt)
	}

	stats, _ = b.Stats(ctx, Extract)
	if stats.InFlight != 1 {
		t.Errorf("Expected 1 in flight, got %+v", stats)
	}

	if state, err := c.Settle(ctx, d, nil); err != nil || state != StateCompleted {
		t.Fatalf("Settle = %s, %v", state, err)
	}

	stats, _ = b.Stats(ctx, Extract)
	if stats.Depth != 0 || stats.InFlight != 0 {
		t.Errorf("Expected empty stream after ack, got %+v", stats)
	}

	done, err := b.Completed(ctx, h.ID)
	if err != nil || !done {
		t.Errorf("Expected result marker, got %v, %v", done, err)
	}

	mr.FastForward(2 * time.Second)
	done, _ = b.Completed(ctx, h.ID)
	if done {
		t.Errorf("Result marker should expire after the result ttl")
	}
}

func TestRedisBrokerReceiveTimesOut(t *testing.T) {
	b, _ := newTestRedisBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := b.Receive(ctx, Classify); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestRedisBrokerReclaimsExpiredLease(t *testing.T) {
	b, _ := newTestRedisBroker(t)
	c := NewClient(b)
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Classify, ClassifyPayload{RowID: 3},
		WithTimeout(10*time.Millisecond), WithRetryInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	first, err := c.Receive(rctx, Classify)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	second, err := c.Receive(rctx, Classify)
	if err != nil {
		t.Fatalf("Expected reclaimed delivery, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected the same job, got %s and %s", first.ID, second.ID)
	}
	if second.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", second.Attempt)
	}
}

func TestRedisBrokerDropsMalformedEntries(t *testing.T) {
	b, _ := newTestRedisBroker(t)
	ctx := context.Background()

	if err := b.ensureGroup(ctx, Ingest); err != nil {
		t.Fatalf("ensureGroup returned error: %v", err)
	}
	b.client.XAdd(ctx, &redis.XAddArgs{Stream: b.StreamName(Ingest), Values: map[string]any{"junk": "1"}})
	b.client.XAdd(ctx, &redis.XAddArgs{Stream: b.StreamName(Ingest), Values: map[string]any{envelopeField: "{"}})

	rctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(rctx, Ingest); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Malformed entries should be skipped, got %v", err)
	}

	n, _ := b.client.XLen(ctx, b.StreamName(Ingest)).Result()
	if n != 0 {
		t.Errorf("Expected malformed entries removed, %d left", n)
	}
}

func TestRedisBrokerGroupCreationIsIdempotent(t *testing.T) {
	b, _ := newTestRedisBroker(t)
	ctx := context.Background()

	if err := b.ensureGroup(ctx, Ingest); err != nil {
		t.Fatalf("First ensureGroup returned error: %v", err)
	}

	other := NewRedisBroker(b.client, RedisConfig{Prefix: "test", Consumer: "worker-2"})
	if err := other.ensureGroup(ctx, Ingest); err != nil {
		t.Errorf("Second ensureGroup should tolerate BUSYGROUP, got %v", err)
	}
}

func TestRedisBrokerRedeliversRetriesInOneScan(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBroker(client, RedisConfig{
		Prefix:       "test",
		Consumer:     "worker-1",
		Block:        20 * time.Millisecond,
		ReclaimEvery: 500 * time.Millisecond,
	})
	t.Cleanup(func() { b.Close() })
	c := NewClient(b)
	ctx := context.Background()

	const jobs = 8
	for i := int64(1); i <= jobs; i++ {
		_, err := c.Enqueue(ctx, Classify, ClassifyPayload{RowID: i},
			WithTimeout(50*time.Millisecond), WithRetryInterval(50*time.Millisecond))
		if err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for i := 0; i < jobs; i++ {
		d, err := c.Receive(rctx, Classify)
		if err != nil {
			t.Fatalf("Receive returned error: %v", err)
		}
		if state, err := c.Settle(ctx, d, errors.New("prediction service down")); err != nil || state != StateFailedRetryable {
			t.Fatalf("Settle = %s, %v", state, err)
		}
	}

	time.Sleep(600 * time.Millisecond)

	start := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < jobs; i++ {
		d, err := c.Receive(rctx, Classify)
		if err != nil {
			t.Fatalf("Receive of retry %d returned error: %v", i+1, err)
		}
		if d.Attempt != 2 {
			t.Errorf("Expected attempt 2, got %d", d.Attempt)
		}
		seen[d.ID] = true
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("Expected expired retries redelivered together, took %v", elapsed)
	}
	if len(seen) != jobs {
		t.Errorf("Expected %d distinct jobs, got %d", jobs, len(seen))
	}
}

func TestRedisBrokerRetryBound(t *testing.T) {
	b, _ := newTestRedisBroker(t)
	sink := &recordingSink{}
	c := NewClient(b, WithDeadLetterSink(sink))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Classify, ClassifyPayload{RowID: 5},
		WithMaxRetries(3), WithTimeout(20*time.Millisecond), WithRetryInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var attempts []int
	for sink.count() == 0 {
		d, err := c.Receive(rctx, Classify)
		if err != nil {
			t.Fatalf("Receive returned error after attempts %v: %v", attempts, err)
		}
		attempts = append(attempts, d.Attempt)
		if _, err := c.Settle(ctx, d, errors.New("always fails")); err != nil {
			t.Fatalf("Settle returned error: %v", err)
		}
	}

	want := []int{1, 2, 3, 4}
	if len(attempts) != len(want) {
		t.Fatalf("Expected attempts %v, got %v", want, attempts)
	}
	for i := range want {
		if attempts[i] != want[i] {
			t.Errorf("Expected attempts %v, got %v", want, attempts)
			break
		}
	}

	if errors.Is(sink.causes[0], errLeaseExhausted) {
		t.Errorf("Expected the handler error to be dead-lettered, got %v", sink.causes[0])
	}

	stats, _ := b.Stats(ctx, Classify)
	if stats.Depth != 0 || stats.InFlight != 0 {
		t.Errorf("Expected empty stream after dead-lettering, got %+v", stats)
	}
}
