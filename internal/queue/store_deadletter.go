package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoDeadLetter indicates a replay was requested for an item without a
// recorded dead letter.
var ErrNoDeadLetter = errors.New("no dead letter recorded")

// AppendDeadLetter records a terminal item failure. The log is append-only;
// replaying an item later leaves prior entries in place. Stage must be a
// forward position: the one the item failed to reach.
func (s *Store) AppendDeadLetter(ctx context.Context, entry DeadLetter) (*DeadLetter, error) {
	if entry.BatchID == "" {
		return nil, errors.New("dead letter batch id is empty")
	}
	if entry.ErrorKind == "" {
		return nil, errors.New("dead letter error kind is empty")
	}
	if _, ok := PrevStage(entry.Stage); !ok || entry.Stage == StageDeadLettered {
		return nil, fmt.Errorf("invalid dead letter stage %q", entry.Stage)
	}
	entry.CreatedAt = time.Now().UTC()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO dead_letters (
            batch_id, item_id, stage, error_kind, message, attempt_count, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.BatchID,
		entry.ItemID,
		entry.Stage,
		entry.ErrorKind,
		nullableString(entry.Message),
		entry.AttemptCount,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert dead letter: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return &entry, nil
}

// DeadLettersByBatch returns the batch's dead letters in order of recording.
func (s *Store) DeadLettersByBatch(ctx context.Context, batchID string) ([]*DeadLetter, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*DeadLetter
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LatestDeadLetter returns the most recent dead letter for an item, or nil
// when none has been recorded.
func (s *Store) LatestDeadLetter(ctx context.Context, batchID string, itemID int64) (*DeadLetter, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters
         WHERE batch_id = ? AND item_id = ?
         ORDER BY id DESC LIMIT 1`,
		batchID,
		itemID,
	)
	entry, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest dead letter: %w", err)
	}
	return entry, nil
}

// Replay resets a dead-lettered item so the next run retries the step
// recorded in its latest dead letter. The item moves to the position just
// before the recorded stage; attempt count and the recorded error are
// cleared; payload columns from completed stages stay intact. The owning
// batch is reopened so a later run can finalize it again.
func (s *Store) Replay(ctx context.Context, batchID string, itemID int64) (*Item, error) {
	item, err := s.GetByKey(ctx, batchID, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %s/%d not found", batchID, itemID)
	}
	if item.Stage != StageDeadLettered {
		return nil, fmt.Errorf("item %s/%d is not dead-lettered (stage %s)", batchID, itemID, item.Stage)
	}

	entry, err := s.LatestDeadLetter(ctx, batchID, itemID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrNoDeadLetter, batchID, itemID)
	}

	reset, ok := PrevStage(entry.Stage)
	if !ok || entry.Stage == StageDeadLettered {
		return nil, fmt.Errorf("dead letter for %s/%d records invalid stage %q", batchID, itemID, entry.Stage)
	}

	item.Stage = reset
	item.AttemptCount = 0
	item.Terminal = false
	item.LastError = ""
	item.ErrorKind = ""
	item.LastHeartbeat = nil
	if err := s.Update(ctx, item); err != nil {
		return nil, err
	}
	if err := s.reopenBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return item, nil
}
