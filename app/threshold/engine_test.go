package threshold

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

func sneakerEngine(t *testing.T) *Engine {
	t.Helper()

	engine, err := NewEngine([]Entry{
		{Model: "keywords", Source: "zalando", Category: "SNEAKERS", Threshold: 0.90},
		{Model: "keywords", Source: "otto", Category: "SNEAKERS", Threshold: 0.85},
		{Model: "keywords", Source: "otto", Category: "SHIRT", Threshold: 0.70},
	}, 0)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestEngine_Threshold(t *testing.T) {
	engine := sneakerEngine(t)

	tests := []struct {
		name     string
		model    string
		category string
		ctx      *Context
		want     float64
	}{
		{"source specific", "keywords", "SNEAKERS", &Context{Source: "zalando"}, 0.90},
		{"merchant defaults to source", "keywords", "SNEAKERS", &Context{Source: "otto", Merchant: "otto"}, 0.85},
		{"unseen source falls back to minimum", "keywords", "SNEAKERS", &Context{Source: "amazon"}, 0.85},
		{"unknown merchant falls back", "keywords", "SNEAKERS", &Context{Source: "zalando", Merchant: "about_you"}, 0.85},
		{"no context", "keywords", "SNEAKERS", nil, 0.85},
		{"category without thresholds", "keywords", "BOOTS", &Context{Source: "otto"}, 0},
		{"other model", "bert", "SNEAKERS", &Context{Source: "zalando"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Threshold(tt.model, tt.category, tt.ctx); got != tt.want {
				t.Errorf("Threshold() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_Apply(t *testing.T) {
	engine := sneakerEngine(t)
	unseen := &Context{Source: "amazon", Merchant: "amazon"}

	tests := []struct {
		name       string
		confidence float64
		want       string
	}{
		{"above fallback", 0.87, "SNEAKERS"},
		{"below fallback", 0.80, product.UnderThreshold},
		{"boundary passes", 0.85, "SNEAKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Apply(product.Classification{
				ModelName:         "keywords",
				PredictedCategory: "SNEAKERS",
				Confidence:        tt.confidence,
			}, unseen)

			if got.CategoryAfterThreshold != tt.want {
				t.Errorf("CategoryAfterThreshold = %q, want %q", got.CategoryAfterThreshold, tt.want)
			}
			if got.ThresholdUsed != 0.85 {
				t.Errorf("ThresholdUsed = %v, want 0.85", got.ThresholdUsed)
			}
		})
	}
}

func TestEngine_ApplySourceSpecific(t *testing.T) {
	engine := sneakerEngine(t)

	got := engine.Apply(product.Classification{
		ModelName:         "keywords",
		PredictedCategory: "SNEAKERS",
		Confidence:        0.87,
	}, &Context{Source: "zalando"})

	if got.CategoryAfterThreshold != product.UnderThreshold {
		t.Errorf("Expected zalando's 0.90 threshold to reject 0.87, got %q", got.CategoryAfterThreshold)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		def     float64
	}{
		{"out of range", []Entry{{Model: "m", Source: "s", Category: "SHIRT", Threshold: 1.5}}, 0},
		{"negative default", nil, -0.1},
		{"unknown category", []Entry{{Model: "m", Source: "s", Category: "SPACESUIT", Threshold: 0.5}}, 0},
		{"missing source", []Entry{{Model: "m", Category: "SHIRT", Threshold: 0.5}}, 0},
		{"duplicate", []Entry{
			{Model: "m", Source: "s", Category: "SHIRT", Threshold: 0.5},
			{Model: "m", Source: "s", Merchant: "s", Category: "shirt", Threshold: 0.6},
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.entries, tt.def); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func writeThresholds(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write thresholds: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yml")
	writeThresholds(t, path, `
default: 0.5
thresholds:
  - model: keywords
    source: otto
    category: sneakers
    threshold: 0.8
`)

	engine, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if engine.Default() != 0.5 {
		t.Errorf("Expected default 0.5, got %v", engine.Default())
	}
	if got := engine.Threshold("keywords", "SNEAKERS", &Context{Source: "otto"}); got != 0.8 {
		t.Errorf("Expected 0.8, got %v", got)
	}
	if got := engine.Threshold("keywords", "SHIRT", nil); got != 0.5 {
		t.Errorf("Expected default for SHIRT, got %v", got)
	}
}

func TestStore_ReloadKeepsEngineOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yml")
	writeThresholds(t, path, "thresholds:\n  - {model: m, source: s, category: SHIRT, threshold: 0.4}\n")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	writeThresholds(t, path, "thresholds:\n  - {model: m, source: s, category: SHIRT, threshold: 7}\n")
	if err := store.Reload(); err == nil {
		t.Error("Expected reload error for invalid file")
	}
	if got := store.Engine().Threshold("m", "SHIRT", nil); got != 0.4 {
		t.Errorf("Expected previous engine kept, got threshold %v", got)
	}
}

func TestStore_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yml")
	writeThresholds(t, path, "thresholds:\n  - {model: m, source: s, category: SHIRT, threshold: 0.4}\n")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeThresholds(t, path, "thresholds:\n  - {model: m, source: s, category: SHIRT, threshold: 0.6}\n")

	deadline := time.Now().Add(5 * time.Second)
	for store.Engine().Threshold("m", "SHIRT", nil) != 0.6 {
		if time.Now().After(deadline) {
			t.Fatal("Store was not reloaded after file change")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}
