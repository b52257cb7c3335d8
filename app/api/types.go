package api

import (
	"context"
	"encoding/json"

	"github.com/lysyi3m/product-comb/app/database"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
)

// Queues is the part of the queue client the admin API needs.
type Queues interface {
	Stats(ctx context.Context) ([]queue.Stats, error)
	Requeue(ctx context.Context, name queue.Name, payload json.RawMessage) (queue.JobHandle, error)
}

var _ Queues = (*queue.Client)(nil)

type Handler struct {
	configCache     *tables.ConfigCache
	queues          Queues
	pages           database.Pages
	products        database.Products
	classifications database.Classifications
	deadLetters     database.DeadLetters
}
