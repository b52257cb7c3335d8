package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/product-comb/app/database"
	"github.com/lysyi3m/product-comb/app/extract"
	"github.com/lysyi3m/product-comb/app/metrics"
	"github.com/lysyi3m/product-comb/app/predict"
	"github.com/lysyi3m/product-comb/app/product"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
	"github.com/lysyi3m/product-comb/app/threshold"
)

// Stages holds the handlers of the ingest, extract and classify queues.
// Every handler persists its output before it enqueues the next stage, and
// may be re-run on redelivery.
type Stages struct {
	router          *tables.Router
	queue           Enqueuer
	pages           database.Pages
	products        database.Products
	classifications database.Classifications
	predictor       Predictor
	thresholds      Thresholds
}

type StagesConfig struct {
	Router          *tables.Router
	Queue           Enqueuer
	Pages           database.Pages
	Products        database.Products
	Classifications database.Classifications
	Predictor       Predictor
	Thresholds      Thresholds
}

func NewStages(cfg StagesConfig) *Stages {
	return &Stages{
		router:          cfg.Router,
		queue:           cfg.Queue,
		pages:           cfg.Pages,
		products:        cfg.Products,
		classifications: cfg.Classifications,
		predictor:       cfg.Predictor,
		thresholds:      cfg.Thresholds,
	}
}

// Handler returns the handler of the named queue.
func (s *Stages) Handler(name queue.Name) (HandlerFunc, error) {
	switch name {
	case queue.Ingest:
		return s.HandleIngest, nil
	case queue.Extract:
		return s.HandleExtract, nil
	case queue.Classify:
		return s.HandleClassify, nil
	default:
		return nil, fmt.Errorf("no handler for queue %q", name)
	}
}

func (s *Stages) route(table string) (tables.Handler, error) {
	h, err := s.router.HandlerFor(table)
	if err != nil {
		return tables.Handler{}, queue.Terminal(err)
	}
	return h, nil
}

// notFound makes a missing row terminal; redelivery cannot bring it back.
func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return queue.Terminal(err)
	}
	return err
}

// HandleIngest persists a fetched page and, for detail pages, enqueues its extraction.
func (s *Stages) HandleIngest(ctx context.Context, d *queue.Delivery) error {
	var p queue.IngestPayload
	if err := d.Decode(&p); err != nil {
		return err
	}

	h, err := s.route(p.Table)
	if err != nil {
		return err
	}

	page := p.Page
	if page.Table == "" {
		page.Table = p.Table
	}
	if err := page.Validate(); err != nil {
		return queue.Terminal(fmt.Errorf("invalid raw page: %w", err))
	}

	// Persist page
	rowID, err := h.Storage.WritePage(ctx, &page)
	if err != nil {
		return fmt.Errorf("failed to persist page: %w", err)
	}

	log := slog.With("queue", d.Queue, "job_id", d.ID, "attempt", d.Attempt, "table", p.Table, "row_id", rowID)

	if page.Kind != product.PageKindDetail {
		log.Debug("Listing page stored", "url", page.SourceURL)
		return nil
	}

	// Enqueue extraction once per page
	enqueued, err := s.pages.ExtractEnqueued(ctx, rowID)
	if err != nil {
		return err
	}
	if enqueued {
		log.Debug("Extraction already enqueued")
		return nil
	}

	job, err := s.queue.EnqueueExtract(ctx, queue.ExtractPayload{Table: p.Table, RowID: rowID})
	if err != nil {
		return fmt.Errorf("failed to enqueue extraction: %w", err)
	}
	if err := s.pages.MarkExtractEnqueued(ctx, rowID); err != nil {
		return err
	}

	log.Info("Page ingested", "url", page.SourceURL, "extract_job_id", job.ID)
	return nil
}

// HandleExtract turns a stored page into a product. Pages that are not
// products complete the job without a downstream job.
func (s *Stages) HandleExtract(ctx context.Context, d *queue.Delivery) error {
	var p queue.ExtractPayload
	if err := d.Decode(&p); err != nil {
		return err
	}

	h, err := s.route(p.Table)
	if err != nil {
		return err
	}

	log := slog.With("queue", d.Queue, "job_id", d.ID, "attempt", d.Attempt, "table", p.Table, "row_id", p.RowID)

	raw, err := h.Storage.ReadPage(ctx, p.RowID)
	if err != nil {
		return notFound(err)
	}

	// Extract
	var result extract.Result
	if page, err := extract.Parse(raw); err != nil {
		result = extract.Malformed(err.Error())
	} else {
		result = h.Extractor.Extract(page)
	}
	metrics.ExtractionOutcomes.WithLabelValues(p.Table, string(result.Outcome)).Inc()

	if result.Outcome != extract.OutcomeProduct || result.Product == nil {
		if err := s.pages.UpdateExtractionStatus(ctx, p.RowID, string(result.Outcome), result.Reason); err != nil {
			return err
		}
		log.Info("Page yielded no product", "extractor", h.Extractor.Name(), "outcome", result.Outcome, "reason", result.Reason)
		return nil
	}

	rec := result.Product
	rec.RawPageID = p.RowID
	rec.Table = p.Table
	rec.Source = h.Table.Source
	rec.Merchant = h.Table.Merchant

	// Persist product
	productID, err := s.products.UpsertProduct(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to persist product: %w", err)
	}
	if err := s.pages.UpdateExtractionStatus(ctx, p.RowID, product.ExtractionProduct, ""); err != nil {
		return err
	}

	enqueued, err := s.products.ClassifyEnqueued(ctx, productID)
	if err != nil {
		return err
	}
	if enqueued {
		log.Debug("Classification already enqueued", "product_id", productID)
		return nil
	}

	job, err := s.queue.EnqueueClassify(ctx, queue.ClassifyPayload{RowID: productID})
	if err != nil {
		return fmt.Errorf("failed to enqueue classification: %w", err)
	}
	if err := s.products.MarkClassifyEnqueued(ctx, productID); err != nil {
		return err
	}

	log.Info("Product extracted", "product_id", productID, "name", rec.Name, "classify_job_id", job.ID)
	return nil
}

// HandleClassify predicts the category of a product and stores the
// thresholded verdict.
func (s *Stages) HandleClassify(ctx context.Context, d *queue.Delivery) error {
	var p queue.ClassifyPayload
	if err := d.Decode(&p); err != nil {
		return err
	}

	log := slog.With("queue", d.Queue, "job_id", d.ID, "attempt", d.Attempt, "row_id", p.RowID)

	rec, err := s.products.GetProduct(ctx, p.RowID)
	if err != nil {
		return notFound(err)
	}
	log = log.With("table", rec.Table)

	// Predict
	preds, err := s.predictor.Predict(ctx, []predict.Features{{
		ID:                rec.ID,
		Name:              rec.Name,
		Description:       rec.Description,
		Brand:             rec.Brand,
		Source:            rec.Source,
		Merchant:          rec.Merchant,
		Category:          rec.Category,
		Gender:            rec.Gender,
		ConsumerLifestage: rec.ConsumerLifestage,
	}})
	if err != nil {
		// Outages retry, rejected requests do not
		if errors.Is(err, predict.ErrUnavailable) {
			return err
		}
		return queue.Terminal(err)
	}
	if len(preds) != 1 {
		return fmt.Errorf("expected 1 prediction, got %d", len(preds))
	}

	pred := preds[0]
	category, confidence := pred.PredictedCategory, pred.Confidence
	if len(pred.Probabilities) > 0 {
		category, confidence = predict.ArgMax(pred.Probabilities)
	}

	c := s.thresholds.Engine().Apply(product.Classification{
		ProductID:         rec.ID,
		ModelName:         pred.ModelName,
		PredictedCategory: category,
		Confidence:        confidence,
		Probabilities:     pred.Probabilities,
	}, &threshold.Context{Source: rec.Source, Merchant: rec.Merchant})

	if err := s.classifications.UpsertClassification(ctx, &c); err != nil {
		return fmt.Errorf("failed to persist classification: %w", err)
	}

	log.Info("Product classified",
		"model", c.ModelName,
		"predicted", c.PredictedCategory,
		"confidence", c.Confidence,
		"threshold", c.ThresholdUsed,
		"result", c.CategoryAfterThreshold)
	return nil
}
