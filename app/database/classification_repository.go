package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

// ClassificationRepository handles database operations for classifications
type ClassificationRepository struct {
	db  *DB
	now func() time.Time
}

// NewClassificationRepository creates a new classification repository
func NewClassificationRepository(db *DB) *ClassificationRepository {
	return &ClassificationRepository{db: db, now: time.Now}
}

// UpsertClassification stores one model's verdict on a product, replacing
// an earlier verdict of the same model.
func (r *ClassificationRepository) UpsertClassification(ctx context.Context, c *product.Classification) error {
	now := r.now().UTC()

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO classifications (
			product_id, model_name, predicted_category, confidence, probabilities,
			threshold_used, category_after_threshold, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, model_name) DO UPDATE SET
			predicted_category = excluded.predicted_category,
			confidence = excluded.confidence,
			probabilities = excluded.probabilities,
			threshold_used = excluded.threshold_used,
			category_after_threshold = excluded.category_after_threshold,
			updated_at = excluded.updated_at
	`), c.ProductID, c.ModelName, c.PredictedCategory, c.Confidence, encodeJSON(c.Probabilities, "{}"),
		c.ThresholdUsed, c.CategoryAfterThreshold, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert classification: %w", err)
	}
	return nil
}

func (r *ClassificationRepository) GetClassifications(ctx context.Context, productID int64) ([]product.Classification, error) {
	var rows []classificationRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, product_id, model_name, predicted_category, confidence, probabilities,
		       threshold_used, category_after_threshold, created_at, updated_at
		FROM classifications
		WHERE product_id = ?
		ORDER BY model_name
	`), productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get classifications: %w", err)
	}

	out := make([]product.Classification, 0, len(rows))
	for _, row := range rows {
		c := product.Classification{
			ID:                     row.ID,
			ProductID:              row.ProductID,
			ModelName:              row.ModelName,
			PredictedCategory:      row.PredictedCategory,
			Confidence:             row.Confidence,
			ThresholdUsed:          row.ThresholdUsed,
			CategoryAfterThreshold: row.CategoryAfterThreshold,
			CreatedAt:              row.CreatedAt,
		}
		decodeJSON(row.Probabilities, &c.Probabilities)
		out = append(out, c)
	}
	return out, nil
}

// GetDecisionCounts counts classifications that passed and failed their threshold.
func (r *ClassificationRepository) GetDecisionCounts(ctx context.Context) (map[string]int, error) {
	var under, total int
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN category_after_threshold = ? THEN 1 ELSE 0 END), 0)
		FROM classifications
	`), product.UnderThreshold).Scan(&total, &under)
	if err != nil {
		return nil, fmt.Errorf("failed to count classifications: %w", err)
	}
	return map[string]int{"passed": total - under, product.UnderThreshold: under}, nil
}
