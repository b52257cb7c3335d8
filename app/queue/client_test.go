package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

type recordingSink struct {
	mu     sync.Mutex
	buried []*Delivery
	causes []error
	err    error
}

func (s *recordingSink) Bury(ctx context.Context, d *Delivery, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.buried = append(s.buried, d)
	s.causes = append(s.causes, cause)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buried)
}

func receive(t *testing.T, c *Client, name Name) *Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := c.Receive(ctx, name)
	if err != nil {
		t.Fatalf("Receive(%s) returned error: %v", name, err)
	}
	return d
}

func TestEnqueueDefaults(t *testing.T) {
	c := NewClient(NewMemoryBroker())
	ctx := context.Background()

	h, err := c.EnqueueExtract(ctx, ExtractPayload{Table: "otto_DE", RowID: 42})
	if err != nil {
		t.Fatalf("EnqueueExtract returned error: %v", err)
	}
	if h.ID == "" || h.Queue != Extract {
		t.Errorf("Unexpected handle %+v", h)
	}

	d := receive(t, c, Extract)
	if d.ID != h.ID {
		t.Errorf("Expected job %s, got %s", h.ID, d.ID)
	}
	if d.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", d.Attempt)
	}
	if d.Timeout != 10*time.Second || d.MaxRetries != 5 || d.RetryInterval != 30*time.Second || d.ResultTTL != time.Second {
		t.Errorf("Unexpected default policy %+v", d.Policy())
	}

	var p ExtractPayload
	if err := d.Decode(&p); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if p.Table != "otto_DE" || p.RowID != 42 {
		t.Errorf("Unexpected payload %+v", p)
	}
}

func TestEnqueueOptionsOverridePolicy(t *testing.T) {
	c := NewClient(NewMemoryBroker())

	_, err := c.Enqueue(context.Background(), Classify, ClassifyPayload{RowID: 1},
		WithTimeout(time.Second), WithMaxRetries(1), WithRetryInterval(0), WithResultTTL(0))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	d := receive(t, c, Classify)
	if d.Timeout != time.Second || d.MaxRetries != 1 || d.RetryInterval != 0 || d.ResultTTL != 0 {
		t.Errorf("Options not applied: %+v", d.Policy())
	}
}

func TestEnqueueUnknownQueue(t *testing.T) {
	c := NewClient(NewMemoryBroker())
	if _, err := c.Enqueue(context.Background(), Name("publish"), ClassifyPayload{}); err == nil {
		t.Error("Expected error for unknown queue")
	}
}

func TestIngestPayloadCarriesPage(t *testing.T) {
	c := NewClient(NewMemoryBroker())
	page := product.RawPage{
		Table:     "otto_DE",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceURL: "https://www.otto.de/p/1",
		Body:      "<html></html>",
		Kind:      product.PageKindDetail,
		Category:  "SHOES",
	}

	if _, err := c.EnqueueIngest(context.Background(), IngestPayload{Table: page.Table, Page: page}); err != nil {
		t.Fatalf("EnqueueIngest returned error: %v", err)
	}

	var got IngestPayload
	if err := receive(t, c, Ingest).Decode(&got); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.Page.Body != page.Body || !got.Page.Timestamp.Equal(page.Timestamp) || got.Page.Kind != page.Kind {
		t.Errorf("Page not carried intact: %+v", got.Page)
	}
}

func TestSettleCompleted(t *testing.T) {
	b := NewMemoryBroker()
	c := NewClient(b)
	ctx := context.Background()

	c.EnqueueClassify(ctx, ClassifyPayload{RowID: 7})
	d := receive(t, c, Classify)

	state, err := c.Settle(ctx, d, nil)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if state != StateCompleted {
		t.Errorf("Expected %s, got %s", StateCompleted, state)
	}

	stats, _ := b.Stats(ctx, Classify)
	if stats.Depth != 0 || stats.InFlight != 0 {
		t.Errorf("Expected empty queue, got %+v", stats)
	}
}

func TestSettleRetriesThenDeadLetters(t *testing.T) {
	sink := &recordingSink{}
	c := NewClient(NewMemoryBroker(), WithDeadLetterSink(sink))
	ctx := context.Background()

	_, err := c.Enqueue(ctx, Extract, ExtractPayload{Table: "otto_DE", RowID: 1},
		WithMaxRetries(2), WithRetryInterval(0))
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	handlerErr := errors.New("database is down")
	var states []State
	for i := 1; i <= 3; i++ {
		d := receive(t, c, Extract)
		if d.Attempt != i {
			t.Fatalf("Expected attempt %d, got %d", i, d.Attempt)
		}
		state, err := c.Settle(ctx, d, handlerErr)
		if err != nil {
			t.Fatalf("Settle returned error: %v", err)
		}
		states = append(states, state)
	}

	want := []State{StateFailedRetryable, StateFailedRetryable, StateFailedTerminal}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("Attempt %d: expected %s, got %s", i+1, want[i], states[i])
		}
	}
	if sink.count() != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", sink.count())
	}
	if !errors.Is(sink.causes[0], handlerErr) {
		t.Errorf("Dead letter cause not kept: %v", sink.causes[0])
	}

	ctxShort, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := c.Receive(ctxShort, Extract); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected no further delivery, got %v", err)
	}
}

func TestSettleTerminalSkipsRetries(t *testing.T) {
	sink := &recordingSink{}
	c := NewClient(NewMemoryBroker(), WithDeadLetterSink(sink))
	ctx := context.Background()

	c.EnqueueExtract(ctx, ExtractPayload{Table: "nope_XX", RowID: 1})
	d := receive(t, c, Extract)

	state, err := c.Settle(ctx, d, Terminal(errors.New("unknown table")))
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if state != StateFailedTerminal {
		t.Errorf("Expected %s, got %s", StateFailedTerminal, state)
	}
	if sink.count() != 1 {
		t.Errorf("Expected dead letter on first attempt")
	}
}

func TestSettleKeepsJobWhenSinkFails(t *testing.T) {
	b := NewMemoryBroker()
	sink := &recordingSink{err: errors.New("sink down")}
	c := NewClient(b, WithDeadLetterSink(sink))
	ctx := context.Background()

	c.EnqueueExtract(ctx, ExtractPayload{Table: "otto_DE", RowID: 1})
	d := receive(t, c, Extract)

	if _, err := c.Settle(ctx, d, Terminal(errors.New("bad"))); err == nil {
		t.Fatal("Expected error when sink fails")
	}
	stats, _ := b.Stats(ctx, Extract)
	if stats.InFlight != 1 {
		t.Errorf("Job should stay in flight until its lease expires, got %+v", stats)
	}
}

func TestDecodeMalformedIsTerminal(t *testing.T) {
	c := NewClient(NewMemoryBroker())
	ctx := context.Background()

	c.Enqueue(ctx, Classify, map[string]string{"row_id": "not-a-number"})
	d := receive(t, c, Classify)

	var p ClassifyPayload
	err := d.Decode(&p)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if !IsTerminal(err) {
		t.Errorf("Decode errors should be terminal: %v", err)
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	c := NewClient(NewMemoryBroker())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := int64(1); i <= 3; i++ {
		c.EnqueueClassify(ctx, ClassifyPayload{RowID: i})
	}

	var seen []int64
	for d, err := range c.Consume(ctx, Classify) {
		if err != nil {
			t.Fatalf("Consume yielded error: %v", err)
		}
		var p ClassifyPayload
		d.Decode(&p)
		seen = append(seen, p.RowID)
		c.Settle(ctx, d, nil)
		if len(seen) == 3 {
			cancel()
		}
	}

	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("Expected rows 1..3 in order, got %v", seen)
	}
}

func TestConsumeYieldsBrokerError(t *testing.T) {
	b := NewMemoryBroker()
	c := NewClient(b)
	b.Close()

	var got error
	for _, err := range c.Consume(context.Background(), Ingest) {
		got = err
	}
	if !errors.Is(got, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", got)
	}
}

func TestTerminalWrapping(t *testing.T) {
	base := errors.New("boom")
	err := Terminal(base)
	if !IsTerminal(err) || !errors.Is(err, base) {
		t.Errorf("Terminal should wrap and mark the error")
	}
	if IsTerminal(base) {
		t.Errorf("Plain errors are not terminal")
	}
	if Terminal(nil) != nil {
		t.Errorf("Terminal(nil) should be nil")
	}
}
