package gate

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(cfg Config, random float64) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := New(cfg, WithClock(clock.Now), WithRandom(func() float64 { return random }))
	return g, clock
}

func TestBeforeRequestThreshold(t *testing.T) {
	g, _ := newTestGate(DefaultConfig(), 0.5)

	for i := 1; i <= DefaultThreshold; i++ {
		if d := g.BeforeRequest("otto"); d != 0 {
			t.Fatalf("Call %d returned delay %v, expected none", i, d)
		}
	}

	d := g.BeforeRequest("otto")
	if d <= 0 {
		t.Fatalf("Call %d should be delayed", DefaultThreshold+1)
	}
	// 0.5 + 0.5 jitter gives exactly one base cooldown
	if d != DefaultCooldown {
		t.Errorf("Expected delay %v, got %v", DefaultCooldown, d)
	}
}

func TestBeforeRequestCooldownBounds(t *testing.T) {
	cfg := Config{Threshold: 3, Cooldown: 10 * time.Second}

	for _, r := range []float64{0, 0.25, 0.999} {
		g, _ := newTestGate(cfg, r)
		for i := 0; i < 3; i++ {
			g.BeforeRequest("amazon")
		}
		d := g.BeforeRequest("amazon")
		if d < 5*time.Second || d >= 15*time.Second {
			t.Errorf("random=%v: delay %v outside [5s, 15s)", r, d)
		}
	}
}

func TestBeforeRequestCooldownExpires(t *testing.T) {
	g, clock := newTestGate(Config{Threshold: 2, Cooldown: 10 * time.Second}, 0.5)

	g.BeforeRequest("zalando")
	g.BeforeRequest("zalando")

	clock.Advance(4 * time.Second)
	if d := g.BeforeRequest("zalando"); d != 6*time.Second {
		t.Errorf("Expected remaining 6s, got %v", d)
	}

	clock.Advance(7 * time.Second)
	if d := g.BeforeRequest("zalando"); d != 0 {
		t.Errorf("Expected no delay after cooldown, got %v", d)
	}
}

func TestBeforeRequestCounterResets(t *testing.T) {
	g, _ := newTestGate(Config{Threshold: 5, Cooldown: time.Second}, 0)

	for i := 0; i < 5; i++ {
		g.BeforeRequest("otto")
	}
	st := g.Snapshot("otto")
	if st.RequestCount != 0 {
		t.Errorf("Expected counter reset to 0, got %d", st.RequestCount)
	}
	if st.CooldownUntil.IsZero() {
		t.Error("Expected cooldown to be set")
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	g, _ := newTestGate(Config{Threshold: 2, Cooldown: time.Minute}, 0.5)

	g.BeforeRequest("otto")
	g.BeforeRequest("otto")

	if d := g.BeforeRequest("amazon"); d != 0 {
		t.Errorf("Other source should not be delayed, got %v", d)
	}
	if d := g.BeforeRequest("otto"); d == 0 {
		t.Error("Exhausted source should be delayed")
	}
}

func TestConfigurePerSource(t *testing.T) {
	g, _ := newTestGate(DefaultConfig(), 0.5)
	g.Configure("amazon", Config{Threshold: 1, Cooldown: 2 * time.Second})

	if d := g.BeforeRequest("amazon"); d != 0 {
		t.Errorf("First call should pass, got %v", d)
	}
	if d := g.BeforeRequest("amazon"); d != 2*time.Second {
		t.Errorf("Expected 2s delay, got %v", d)
	}
}

func TestBeforeRequestConcurrent(t *testing.T) {
	g, _ := newTestGate(Config{Threshold: 100, Cooldown: time.Minute}, 0.5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	delayed := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.BeforeRequest("otto") > 0 {
				mu.Lock()
				delayed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if delayed != 50 {
		t.Errorf("Expected 50 delayed calls, got %d", delayed)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	g, _ := newTestGate(Config{Threshold: 1, Cooldown: time.Hour}, 0.5)
	g.BeforeRequest("otto")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Wait(ctx, "otto"); err == nil {
		t.Error("Expected context error")
	}
}
