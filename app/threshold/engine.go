package threshold

import (
	"fmt"

	"github.com/lysyi3m/product-comb/app/catalog"
	"github.com/lysyi3m/product-comb/app/metrics"
	"github.com/lysyi3m/product-comb/app/product"
)

// Entry is a threshold for one model, source, merchant and category.
type Entry struct {
	Model     string  `yaml:"model" json:"model"`
	Source    string  `yaml:"source" json:"source"`
	Merchant  string  `yaml:"merchant" json:"merchant"`
	Category  string  `yaml:"category" json:"category"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// Context identifies where a classified product came from.
type Context struct {
	Source   string `json:"source"`
	Merchant string `json:"merchant"`
}

type entryKey struct {
	model, source, merchant, category string
}

type categoryKey struct {
	model, category string
}

// Engine decides whether a predicted category is confident enough. It is
// immutable after construction and safe for concurrent use.
type Engine struct {
	specific map[entryKey]float64
	fallback map[categoryKey]float64
	def      float64
	entries  []Entry
}

// NewEngine indexes entries. The fallback of a category is the lowest
// source-specific threshold known for it; def applies when a category has
// no thresholds at all.
func NewEngine(entries []Entry, def float64) (*Engine, error) {
	if err := checkRange(def); err != nil {
		return nil, fmt.Errorf("default threshold: %w", err)
	}

	e := &Engine{
		specific: make(map[entryKey]float64, len(entries)),
		fallback: make(map[categoryKey]float64),
		def:      def,
		entries:  make([]Entry, 0, len(entries)),
	}

	for i, entry := range entries {
		if entry.Model == "" || entry.Source == "" {
			return nil, fmt.Errorf("threshold %d: model and source are required", i)
		}
		if err := checkRange(entry.Threshold); err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i, err)
		}
		category, err := catalog.ParseCategory(entry.Category)
		if err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i, err)
		}
		entry.Category = string(category)
		if entry.Merchant == "" {
			entry.Merchant = entry.Source
		}

		key := entryKey{entry.Model, entry.Source, entry.Merchant, entry.Category}
		if _, dup := e.specific[key]; dup {
			return nil, fmt.Errorf("threshold %d: duplicate entry for %s/%s/%s/%s",
				i, entry.Model, entry.Source, entry.Merchant, entry.Category)
		}
		e.specific[key] = entry.Threshold

		ck := categoryKey{entry.Model, entry.Category}
		if current, ok := e.fallback[ck]; !ok || entry.Threshold < current {
			e.fallback[ck] = entry.Threshold
		}
		e.entries = append(e.entries, entry)
	}

	return e, nil
}

func checkRange(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("threshold %v outside [0,1]", v)
	}
	return nil
}

// Threshold returns the threshold for a prediction of category by model.
// A nil ctx skips the source-specific lookup.
func (e *Engine) Threshold(model, category string, ctx *Context) float64 {
	if ctx != nil && ctx.Source != "" {
		merchant := ctx.Merchant
		if merchant == "" {
			merchant = ctx.Source
		}
		if t, ok := e.specific[entryKey{model, ctx.Source, merchant, category}]; ok {
			return t
		}
	}
	if t, ok := e.fallback[categoryKey{model, category}]; ok {
		return t
	}
	return e.def
}

// Apply fills in the threshold decision of c and returns the result.
func (e *Engine) Apply(c product.Classification, ctx *Context) product.Classification {
	c.ThresholdUsed = e.Threshold(c.ModelName, c.PredictedCategory, ctx)

	result := "passed"
	if c.Confidence >= c.ThresholdUsed {
		c.CategoryAfterThreshold = c.PredictedCategory
	} else {
		c.CategoryAfterThreshold = product.UnderThreshold
		result = product.UnderThreshold
	}
	metrics.ThresholdDecisions.WithLabelValues(c.ModelName, result).Inc()

	return c
}

// Entries returns a copy of the configured thresholds.
func (e *Engine) Entries() []Entry {
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *Engine) Default() float64 {
	return e.def
}
