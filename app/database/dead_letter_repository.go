package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/product-comb/app/queue"
)

// DeadLetterRepository stores jobs the queue gave up on.
type DeadLetterRepository struct {
	db  *DB
	now func() time.Time
}

func NewDeadLetterRepository(db *DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, now: time.Now}
}

// Bury records d. Burying the same job again overwrites the earlier record.
func (r *DeadLetterRepository) Bury(ctx context.Context, d *queue.Delivery, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO dead_letters (job_id, queue, payload, attempts, error, terminal, enqueued_at, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			attempts = excluded.attempts,
			error = excluded.error,
			terminal = excluded.terminal,
			failed_at = excluded.failed_at
	`), d.ID, string(d.Queue), string(d.Payload), d.Attempt, msg, queue.IsTerminal(cause),
		d.EnqueuedAt.UTC(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the newest dead letters, optionally for one queue.
func (r *DeadLetterRepository) ListDeadLetters(ctx context.Context, queueName string, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, job_id, queue, payload, attempts, error, terminal, enqueued_at, failed_at FROM dead_letters`
	args := []any{}
	if queueName != "" {
		query += ` WHERE queue = ?`
		args = append(args, queueName)
	}
	query += ` ORDER BY failed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []deadLetterRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDeadLetter())
	}
	return out, nil
}

func (r *DeadLetterRepository) GetDeadLetter(ctx context.Context, id int64) (*DeadLetter, error) {
	var row deadLetterRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, job_id, queue, payload, attempts, error, terminal, enqueued_at, failed_at
		FROM dead_letters WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dead letter %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}

	dl := row.toDeadLetter()
	return &dl, nil
}

func (r *DeadLetterRepository) DeleteDeadLetter(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM dead_letters WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dead letter %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *DeadLetterRepository) CountDeadLetters(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT queue, COUNT(*) FROM dead_letters GROUP BY queue`)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var q string
		var n int
		if err := rows.Scan(&q, &n); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter count: %w", err)
		}
		counts[q] = n
	}
	return counts, rows.Err()
}

func (row deadLetterRow) toDeadLetter() DeadLetter {
	return DeadLetter{
		ID:         row.ID,
		JobID:      row.JobID,
		Queue:      row.Queue,
		Payload:    []byte(row.Payload),
		Attempts:   row.Attempts,
		Error:      row.Error,
		Terminal:   row.Terminal,
		EnqueuedAt: row.EnqueuedAt,
		FailedAt:   row.FailedAt,
	}
}
