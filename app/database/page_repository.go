package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/product-comb/app/product"
)

// PageRepository handles database operations for raw pages
type PageRepository struct {
	db  *DB
	now func() time.Time
}

// NewPageRepository creates a new raw page repository
func NewPageRepository(db *DB) *PageRepository {
	return &PageRepository{db: db, now: time.Now}
}

// WritePage stores a fetched page. Writing the same page twice returns the
// id of the existing row.
func (r *PageRepository) WritePage(ctx context.Context, table string, page *product.RawPage) (int64, error) {
	if page.Table != "" && page.Table != table {
		return 0, fmt.Errorf("page belongs to table %s, not %s", page.Table, table)
	}

	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO raw_pages (table_name, source_url, page_kind, category, gender, consumer_lifestage, body, extra_metadata, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, source_url, fetched_at) DO UPDATE SET body = excluded.body
		RETURNING id
	`), table, page.SourceURL, string(page.Kind), page.Category, page.Gender, page.ConsumerLifestage,
		page.Body, encodeJSON(page.Extra, "{}"), page.Timestamp.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to write page: %w", err)
	}

	return id, nil
}

func (r *PageRepository) ReadPage(ctx context.Context, table string, id int64) (*product.RawPage, error) {
	var row pageRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, table_name, source_url, page_kind, category, gender, consumer_lifestage, body,
		       extra_metadata, fetched_at, extraction_status, extraction_reason, extract_enqueued_at, created_at
		FROM raw_pages
		WHERE id = ? AND table_name = ?
	`), id, table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %d in table %s: %w", id, table, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	page := &product.RawPage{
		ID:                row.ID,
		Table:             row.TableName,
		Timestamp:         row.FetchedAt.UTC(),
		SourceURL:         row.SourceURL,
		Body:              row.Body,
		Kind:              product.PageKind(row.PageKind),
		Category:          row.Category,
		Gender:            row.Gender,
		ConsumerLifestage: row.ConsumerLifestage,
	}
	decodeJSON(row.ExtraMetadata, &page.Extra)

	return page, nil
}

func (r *PageRepository) ExtractEnqueued(ctx context.Context, id int64) (bool, error) {
	var enqueuedAt sql.NullTime
	err := r.db.GetContext(ctx, &enqueuedAt, r.db.Rebind(`SELECT extract_enqueued_at FROM raw_pages WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("page %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check extract flag: %w", err)
	}
	return enqueuedAt.Valid, nil
}

func (r *PageRepository) MarkExtractEnqueued(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE raw_pages SET extract_enqueued_at = ? WHERE id = ? AND extract_enqueued_at IS NULL
	`), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark extract enqueued: %w", err)
	}
	return nil
}

func (r *PageRepository) UpdateExtractionStatus(ctx context.Context, id int64, status, reason string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE raw_pages SET extraction_status = ?, extraction_reason = ? WHERE id = ?
	`), status, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update extraction status: %w", err)
	}
	return nil
}

// GetPageStats counts pages per extraction status.
func (r *PageRepository) GetPageStats(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT extraction_status, COUNT(*) FROM raw_pages GROUP BY extraction_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan page stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ForTable binds the repository to one table.
func (r *PageRepository) ForTable(table string) *PageStore {
	return &PageStore{repo: r, table: table}
}

// PageStore is the page storage of a single table.
type PageStore struct {
	repo  *PageRepository
	table string
}

func (s *PageStore) WritePage(ctx context.Context, page *product.RawPage) (int64, error) {
	return s.repo.WritePage(ctx, s.table, page)
}

func (s *PageStore) ReadPage(ctx context.Context, id int64) (*product.RawPage, error) {
	return s.repo.ReadPage(ctx, s.table, id)
}
