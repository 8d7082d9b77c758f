package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrBatchFinalized indicates a finalize was attempted on an already completed batch.
var ErrBatchFinalized = errors.New("batch already finalized")

// NewBatch inserts a batch row, or returns the existing one when the
// identifier is already present so a resumed run reuses its batch.
func (s *Store) NewBatch(ctx context.Context, id string, deadline *time.Time) (*Batch, error) {
	if id == "" {
		return nil, errors.New("batch id is empty")
	}
	now := time.Now().UTC()

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO batches (batch_id, created_at, deadline)
         VALUES (?, ?, ?)
         ON CONFLICT(batch_id) DO NOTHING`,
		id,
		now.Format(time.RFC3339Nano),
		nullableTime(deadline),
	); err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	batch, err := s.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("batch %s vanished after insert", id)
	}
	return batch, nil
}

// GetBatch fetches a batch by identifier.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE batch_id = ?`, id)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return batch, nil
}

// FinalizeBatch records the outcome of a completed run. A batch is
// finalized at most once; finalizing again returns ErrBatchFinalized.
func (s *Store) FinalizeBatch(ctx context.Context, id string, itemCount, succeeded, deadLettered int, outcome string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batches
         SET item_count = ?, succeeded = ?, dead_lettered = ?, outcome = ?, completed_at = ?
         WHERE batch_id = ? AND completed_at IS NULL`,
		itemCount,
		succeeded,
		deadLettered,
		outcome,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		batch, getErr := s.GetBatch(ctx, id)
		if getErr != nil {
			return getErr
		}
		if batch == nil {
			return fmt.Errorf("finalize batch: %s not found", id)
		}
		return fmt.Errorf("%w: %s", ErrBatchFinalized, id)
	}
	return nil
}

// reopenBatch clears the finalized marker so a replayed item can run again.
func (s *Store) reopenBatch(ctx context.Context, id string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE batches SET outcome = NULL, completed_at = NULL WHERE batch_id = ?`,
		id,
	); err != nil {
		return fmt.Errorf("reopen batch: %w", err)
	}
	return nil
}

// RecentBatches returns the most recently created batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]*Batch, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}
