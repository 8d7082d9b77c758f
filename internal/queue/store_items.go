package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewItem inserts a pending item for a ranked story. Enqueueing the same
// (batch, item) pair twice returns the existing row with created=false so
// a resumed batch never duplicates work.
func (s *Store) NewItem(ctx context.Context, batchID string, itemID int64, rank int, title, sourceURL, storyJSON string) (*Item, bool, error) {
	if batchID == "" {
		return nil, false, errors.New("batch id is empty")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO items (
            batch_id, item_id, rank, title, source_url, stage,
            attempt_count, story_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(batch_id, item_id) DO NOTHING`,
		batchID,
		itemID,
		rank,
		nullableString(title),
		nullableString(sourceURL),
		StagePending,
		0,
		nullableString(storyJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	item, err := s.GetByKey(ctx, batchID, itemID)
	if err != nil {
		return nil, false, err
	}
	if item == nil {
		return nil, false, fmt.Errorf("item %s/%d vanished after insert", batchID, itemID)
	}
	return item, affected > 0, nil
}

// GetByID fetches an item by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByKey fetches an item by its batch and story identifiers.
func (s *Store) GetByKey(ctx context.Context, batchID string, itemID int64) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE batch_id = ? AND item_id = ?`,
		batchID,
		itemID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by key: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items
         SET rank = ?, title = ?, source_url = ?, stage = ?, attempt_count = ?,
             story_json = ?, article_text = ?, script_text = ?, audio_path = ?,
             episode_url = ?, last_error = ?, error_kind = ?, terminal = ?,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		item.Rank,
		nullableString(item.Title),
		nullableString(item.SourceURL),
		item.Stage,
		item.AttemptCount,
		nullableString(item.StoryJSON),
		nullableString(item.ArticleText),
		nullableString(item.ScriptText),
		nullableString(item.AudioPath),
		nullableString(item.EpisodeURL),
		nullableString(item.LastError),
		nullableString(item.ErrorKind),
		boolToInt(item.Terminal),
		nullableTime(item.LastHeartbeat),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ItemsByBatch returns every item of a batch ordered by rank.
func (s *Store) ItemsByBatch(ctx context.Context, batchID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE batch_id = ? ORDER BY rank, item_id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query by batch: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ItemsByStage returns the batch's items currently at a stage, ordered by rank.
func (s *Store) ItemsByStage(ctx context.Context, batchID string, stage Stage) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE batch_id = ? AND stage = ? ORDER BY rank, item_id`,
		batchID,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("query by stage: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NonTerminalByBatch returns the batch's items that still have work ahead,
// ordered by rank.
func (s *Store) NonTerminalByBatch(ctx context.Context, batchID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE batch_id = ? AND terminal = 0 ORDER BY rank, item_id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query non-terminal: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns items filtered by stage set (or all items when no stage is provided).
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY batch_id, rank, item_id`

	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		query := baseQuery + ` WHERE stage IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Remove deletes an item by row identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes published and dead-lettered items, keeping batch
// rows and the dead-letter log for audit.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE terminal = 1`)
	if err != nil {
		return 0, fmt.Errorf("clear terminal: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all items, batches, and dead letters.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items`)
	if err != nil {
		return 0, fmt.Errorf("clear items: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM dead_letters`); err != nil {
		return removed, fmt.Errorf("clear dead letters: %w", err)
	}
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM batches`); err != nil {
		return removed, fmt.Errorf("clear batches: %w", err)
	}
	return removed, nil
}
