package tasks

import (
	"context"

	"github.com/lysyi3m/product-comb/app/predict"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/threshold"
)

// HandlerFunc runs one delivery. Returning nil completes the job; errors
// wrapped with queue.Terminal are not retried.
type HandlerFunc func(ctx context.Context, d *queue.Delivery) error

// Enqueuer chains a stage to the next one.
type Enqueuer interface {
	EnqueueExtract(ctx context.Context, p queue.ExtractPayload) (queue.JobHandle, error)
	EnqueueClassify(ctx context.Context, p queue.ClassifyPayload) (queue.JobHandle, error)
}

// Predictor is the prediction service as seen by the classify stage.
type Predictor interface {
	Predict(ctx context.Context, products []predict.Features) ([]predict.Prediction, error)
}

type Thresholds interface {
	Engine() *threshold.Engine
}

var (
	_ Enqueuer   = (*queue.Client)(nil)
	_ Predictor  = (*predict.Client)(nil)
	_ Thresholds = (*threshold.Store)(nil)
)
