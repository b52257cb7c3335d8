package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// DeadLetter is a job that was given up on.
type DeadLetter struct {
	ID         int64           `json:"id"`
	JobID      string          `json:"job_id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	Error      string          `json:"error"`
	Terminal   bool            `json:"terminal"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	FailedAt   time.Time       `json:"failed_at"`
}

type pageRow struct {
	ID                int64        `db:"id"`
	TableName         string       `db:"table_name"`
	SourceURL         string       `db:"source_url"`
	PageKind          string       `db:"page_kind"`
	Category          string       `db:"category"`
	Gender            string       `db:"gender"`
	ConsumerLifestage string       `db:"consumer_lifestage"`
	Body              string       `db:"body"`
	ExtraMetadata     string       `db:"extra_metadata"`
	FetchedAt         time.Time    `db:"fetched_at"`
	ExtractionStatus  string       `db:"extraction_status"`
	ExtractionReason  string       `db:"extraction_reason"`
	ExtractEnqueuedAt sql.NullTime `db:"extract_enqueued_at"`
	CreatedAt         time.Time    `db:"created_at"`
}

type productRow struct {
	ID                   int64           `db:"id"`
	RawPageID            int64           `db:"raw_page_id"`
	TableName            string          `db:"table_name"`
	Source               string          `db:"source"`
	Merchant             string          `db:"merchant"`
	URL                  string          `db:"url"`
	Name                 string          `db:"name"`
	Description          string          `db:"description"`
	Brand                string          `db:"brand"`
	Price                sql.NullFloat64 `db:"price"`
	Currency             string          `db:"currency"`
	ImageURLs            string          `db:"image_urls"`
	SustainabilityLabels string          `db:"sustainability_labels"`
	Color                string          `db:"color"`
	Size                 string          `db:"size"`
	GTIN                 string          `db:"gtin"`
	SKU                  string          `db:"sku"`
	Identifiers          string          `db:"identifiers"`
	Category             string          `db:"category"`
	Gender               string          `db:"gender"`
	ConsumerLifestage    string          `db:"consumer_lifestage"`
	ClassifyEnqueuedAt   sql.NullTime    `db:"classify_enqueued_at"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

type classificationRow struct {
	ID                     int64     `db:"id"`
	ProductID              int64     `db:"product_id"`
	ModelName              string    `db:"model_name"`
	PredictedCategory      string    `db:"predicted_category"`
	Confidence             float64   `db:"confidence"`
	Probabilities          string    `db:"probabilities"`
	ThresholdUsed          float64   `db:"threshold_used"`
	CategoryAfterThreshold string    `db:"category_after_threshold"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

type deadLetterRow struct {
	ID         int64     `db:"id"`
	JobID      string    `db:"job_id"`
	Queue      string    `db:"queue"`
	Payload    string    `db:"payload"`
	Attempts   int       `db:"attempts"`
	Error      string    `db:"error"`
	Terminal   bool      `db:"terminal"`
	EnqueuedAt time.Time `db:"enqueued_at"`
	FailedAt   time.Time `db:"failed_at"`
}

func encodeJSON(v any, empty string) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return empty
	}
	return string(data)
}

func decodeJSON(s string, v any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), v)
}
