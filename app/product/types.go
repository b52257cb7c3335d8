package product

import (
	"fmt"
	"time"
)

type PageKind string

const (
	PageKindListing PageKind = "LISTING"
	PageKindDetail  PageKind = "DETAIL"
)

func (k PageKind) Valid() bool {
	return k == PageKindListing || k == PageKindDetail
}

// Metadata keys carried from crawl requests onto pages and into fingerprints.
const (
	MetaCategory          = "category"
	MetaGender            = "gender"
	MetaConsumerLifestage = "consumer_lifestage"
)

// Extraction statuses stored on raw pages.
const (
	ExtractionPending    = "pending"
	ExtractionProduct    = "product"
	ExtractionNotProduct = "not_product"
	ExtractionMalformed  = "malformed"
)

// RawPage is one fetched page as produced by the crawler.
type RawPage struct {
	ID                int64             `json:"id,omitempty"`
	Table             string            `json:"table_name"`
	Timestamp         time.Time         `json:"timestamp"`
	SourceURL         string            `json:"source_url"`
	Body              string            `json:"body"`
	Kind              PageKind          `json:"page_kind"`
	Category          string            `json:"category"`
	Gender            string            `json:"gender,omitempty"`
	ConsumerLifestage string            `json:"consumer_lifestage,omitempty"`
	Extra             map[string]string `json:"extra_metadata,omitempty"`
}

func (p *RawPage) Validate() error {
	if p.Table == "" {
		return fmt.Errorf("raw page has no table name")
	}
	if p.SourceURL == "" {
		return fmt.Errorf("raw page has no source url")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("invalid page kind %q", p.Kind)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("raw page has no fetch timestamp")
	}
	return nil
}

// Metadata returns the crawl metadata of the page keyed like request metadata.
func (p *RawPage) Metadata() map[string]string {
	m := map[string]string{MetaCategory: p.Category}
	if p.Gender != "" {
		m[MetaGender] = p.Gender
	}
	if p.ConsumerLifestage != "" {
		m[MetaConsumerLifestage] = p.ConsumerLifestage
	}
	return m
}

// Record is the structured product extracted from a detail page.
type Record struct {
	ID                   int64             `json:"id"`
	RawPageID            int64             `json:"raw_page_id"`
	Table                string            `json:"table_name"`
	Source               string            `json:"source"`
	Merchant             string            `json:"merchant"`
	URL                  string            `json:"url"`
	Name                 string            `json:"name"`
	Description          string            `json:"description,omitempty"`
	Brand                string            `json:"brand,omitempty"`
	Price                *float64          `json:"price,omitempty"`
	Currency             string            `json:"currency,omitempty"`
	ImageURLs            []string          `json:"image_urls,omitempty"`
	SustainabilityLabels []string          `json:"sustainability_labels,omitempty"`
	Color                string            `json:"color,omitempty"`
	Size                 string            `json:"size,omitempty"`
	GTIN                 string            `json:"gtin,omitempty"`
	SKU                  string            `json:"sku,omitempty"`
	Identifiers          map[string]string `json:"identifiers,omitempty"`
	Category             string            `json:"category"`
	Gender               string            `json:"gender,omitempty"`
	ConsumerLifestage    string            `json:"consumer_lifestage,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// UnderThreshold is the post-threshold label of a prediction whose
// confidence did not reach the applicable threshold.
const UnderThreshold = "under_threshold"

// Classification is the output of the classification stage for one product and model.
type Classification struct {
	ID                     int64              `json:"id,omitempty"`
	ProductID              int64              `json:"product_id"`
	ModelName              string             `json:"model_name"`
	PredictedCategory      string             `json:"predicted_category"`
	Confidence             float64            `json:"confidence"`
	Probabilities          map[string]float64 `json:"probabilities"`
	ThresholdUsed          float64            `json:"threshold_used"`
	CategoryAfterThreshold string             `json:"category_after_threshold"`
	CreatedAt              time.Time          `json:"created_at"`
}

func (c *Classification) Passed() bool {
	return c.CategoryAfterThreshold != "" && c.CategoryAfterThreshold != UnderThreshold
}
