package predict

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/product-comb/app/catalog"
)

// Model turns product features into a probability per category.
type Model interface {
	Name() string
	Predict(f Features) map[string]float64
}

// KeywordModelConfig is the YAML shape of a keyword model file.
type KeywordModelConfig struct {
	Name       string              `yaml:"name"`
	Smoothing  float64             `yaml:"smoothing"`
	Categories map[string][]string `yaml:"categories"`
}

// KeywordModel scores categories by counting their keywords in the product
// text. Counts are additively smoothed into a distribution.
type KeywordModel struct {
	name       string
	smoothing  float64
	categories []string
	matcher    *ahocorasick.Matcher
	keywords   []string
	kwToCats   map[string][]string
}

func LoadKeywordModel(path string) (*KeywordModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var cfg KeywordModelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return NewKeywordModel(cfg)
}

func NewKeywordModel(cfg KeywordModelConfig) (*KeywordModel, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("model %s has no categories", cfg.Name)
	}
	if cfg.Smoothing < 0 {
		return nil, fmt.Errorf("model %s: smoothing must be non-negative", cfg.Name)
	}
	if cfg.Smoothing == 0 {
		cfg.Smoothing = 1
	}

	m := &KeywordModel{
		name:      cfg.Name,
		smoothing: cfg.Smoothing,
		kwToCats:  make(map[string][]string),
	}

	for raw, words := range cfg.Categories {
		category, err := catalog.ParseCategory(raw)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", cfg.Name, err)
		}
		if slices.Contains(m.categories, string(category)) {
			return nil, fmt.Errorf("model %s: category %s listed twice", cfg.Name, category)
		}
		m.categories = append(m.categories, string(category))

		for _, w := range words {
			kw := strings.ToLower(strings.TrimSpace(w))
			if kw == "" {
				continue
			}
			if _, seen := m.kwToCats[kw]; !seen {
				m.keywords = append(m.keywords, kw)
			}
			m.kwToCats[kw] = append(m.kwToCats[kw], string(category))
		}
	}
	sort.Strings(m.categories)

	if len(m.keywords) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(m.keywords)
	}
	return m, nil
}

func (m *KeywordModel) Name() string {
	return m.name
}

func (m *KeywordModel) Predict(f Features) map[string]float64 {
	hits := make(map[string]float64, len(m.categories))
	total := 0.0

	if m.matcher != nil {
		text := strings.ToLower(strings.Join([]string{f.Name, f.Brand, f.Description}, " "))
		for _, idx := range m.matcher.MatchThreadSafe([]byte(text)) {
			if idx >= len(m.keywords) {
				continue
			}
			for _, category := range m.kwToCats[m.keywords[idx]] {
				hits[category]++
				total++
			}
		}
	}

	denom := total + m.smoothing*float64(len(m.categories))
	out := make(map[string]float64, len(m.categories))
	for _, category := range m.categories {
		out[category] = (hits[category] + m.smoothing) / denom
	}
	return out
}
