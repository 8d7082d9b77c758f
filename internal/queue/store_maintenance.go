package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stats returns a count of items grouped by stage across all batches.
func (s *Store) Stats(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM items GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

// BatchStats returns a count of the batch's items grouped by stage.
func (s *Store) BatchStats(ctx context.Context, batchID string) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, COUNT(1) FROM items WHERE batch_id = ? GROUP BY stage`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("batch stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for stage, count := range stats {
		health.Total += count
		switch stage {
		case StagePending:
			health.Pending += count
		case StagePublished:
			health.Published += count
		case StageDeadLettered:
			health.DeadLettered += count
		default:
			health.Processing += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the pipeline database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		DBPath:        s.path,
		SchemaVersion: strconv.Itoa(schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"batches", "items", "dead_letters", "schema_version"}
	present := make(map[string]struct{}, len(expected))
	tableRows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	defer tableRows.Close()
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := tableRows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	for _, name := range expected {
		if _, ok := present[name]; ok {
			health.TablesPresent = append(health.TablesPresent, name)
		} else {
			health.MissingTables = append(health.MissingTables, name)
		}
	}

	if _, ok := present["items"]; ok {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM items")
		if err := row.Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count items: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
