package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

// ProductRepository handles database operations for extracted products
type ProductRepository struct {
	db  *DB
	now func() time.Time
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db, now: time.Now}
}

// UpsertProduct stores the product of a raw page; a page has at most one product.
func (r *ProductRepository) UpsertProduct(ctx context.Context, rec *product.Record) (int64, error) {
	var price sql.NullFloat64
	if rec.Price != nil {
		price = sql.NullFloat64{Float64: *rec.Price, Valid: true}
	}
	now := r.now().UTC()

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO products (
			raw_page_id, table_name, source, merchant, url, name, description, brand, price, currency,
			image_urls, sustainability_labels, color, size, gtin, sku, identifiers,
			category, gender, consumer_lifestage, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (raw_page_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			brand = excluded.brand,
			price = excluded.price,
			currency = excluded.currency,
			image_urls = excluded.image_urls,
			sustainability_labels = excluded.sustainability_labels,
			color = excluded.color,
			size = excluded.size,
			gtin = excluded.gtin,
			sku = excluded.sku,
			identifiers = excluded.identifiers,
			updated_at = excluded.updated_at
		RETURNING id
	`),
		rec.RawPageID, rec.Table, rec.Source, rec.Merchant, rec.URL, rec.Name, rec.Description, rec.Brand,
		price, rec.Currency,
		encodeJSON(rec.ImageURLs, "[]"), encodeJSON(rec.SustainabilityLabels, "[]"),
		rec.Color, rec.Size, rec.GTIN, rec.SKU, encodeJSON(rec.Identifiers, "{}"),
		rec.Category, rec.Gender, rec.ConsumerLifestage, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product: %w", err)
	}

	return id, nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (*product.Record, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, raw_page_id, table_name, source, merchant, url, name, description, brand, price, currency,
		       image_urls, sustainability_labels, color, size, gtin, sku, identifiers,
		       category, gender, consumer_lifestage, classify_enqueued_at, created_at, updated_at
		FROM products
		WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	rec := &product.Record{
		ID:                row.ID,
		RawPageID:         row.RawPageID,
		Table:             row.TableName,
		Source:            row.Source,
		Merchant:          row.Merchant,
		URL:               row.URL,
		Name:              row.Name,
		Description:       row.Description,
		Brand:             row.Brand,
		Currency:          row.Currency,
		Color:             row.Color,
		Size:              row.Size,
		GTIN:              row.GTIN,
		SKU:               row.SKU,
		Category:          row.Category,
		Gender:            row.Gender,
		ConsumerLifestage: row.ConsumerLifestage,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.Price.Valid {
		price := row.Price.Float64
		rec.Price = &price
	}
	decodeJSON(row.ImageURLs, &rec.ImageURLs)
	decodeJSON(row.SustainabilityLabels, &rec.SustainabilityLabels)
	decodeJSON(row.Identifiers, &rec.Identifiers)

	return rec, nil
}

func (r *ProductRepository) GetProductCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func (r *ProductRepository) ClassifyEnqueued(ctx context.Context, id int64) (bool, error) {
	var enqueuedAt sql.NullTime
	err := r.db.GetContext(ctx, &enqueuedAt, r.db.Rebind(`SELECT classify_enqueued_at FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check classify flag: %w", err)
	}
	return enqueuedAt.Valid, nil
}

func (r *ProductRepository) MarkClassifyEnqueued(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE products SET classify_enqueued_at = ? WHERE id = ? AND classify_enqueued_at IS NULL
	`), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark classify enqueued: %w", err)
	}
	return nil
}
