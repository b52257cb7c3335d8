package database

import (
	"context"

	"github.com/lysyi3m/product-comb/app/product"
	"github.com/lysyi3m/product-comb/app/queue"
)

// Pages is the raw page storage used by the pipeline stages.
type Pages interface {
	WritePage(ctx context.Context, table string, page *product.RawPage) (int64, error)
	ReadPage(ctx context.Context, table string, id int64) (*product.RawPage, error)

	ExtractEnqueued(ctx context.Context, id int64) (bool, error)
	MarkExtractEnqueued(ctx context.Context, id int64) error
	UpdateExtractionStatus(ctx context.Context, id int64, status, reason string) error

	GetPageStats(ctx context.Context) (map[string]int, error)
}

type Products interface {
	UpsertProduct(ctx context.Context, rec *product.Record) (int64, error)
	GetProduct(ctx context.Context, id int64) (*product.Record, error)
	GetProductCount(ctx context.Context) (int, error)

	ClassifyEnqueued(ctx context.Context, id int64) (bool, error)
	MarkClassifyEnqueued(ctx context.Context, id int64) error
}

type Classifications interface {
	UpsertClassification(ctx context.Context, c *product.Classification) error
	GetClassifications(ctx context.Context, productID int64) ([]product.Classification, error)
	GetDecisionCounts(ctx context.Context) (map[string]int, error)
}

// DeadLetters stores jobs that failed permanently.
type DeadLetters interface {
	queue.DeadLetterSink

	ListDeadLetters(ctx context.Context, queueName string, limit int) ([]DeadLetter, error)
	GetDeadLetter(ctx context.Context, id int64) (*DeadLetter, error)
	DeleteDeadLetter(ctx context.Context, id int64) error
	CountDeadLetters(ctx context.Context) (map[string]int, error)
}

var (
	_ Pages           = (*PageRepository)(nil)
	_ Products        = (*ProductRepository)(nil)
	_ Classifications = (*ClassificationRepository)(nil)
	_ DeadLetters     = (*DeadLetterRepository)(nil)
)
