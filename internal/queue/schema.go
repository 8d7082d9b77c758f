package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on any schema change. There is no migration
// path; a mismatched database must be cleared or deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the on-disk schema version differs from
// the one this binary expects.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	version, initialized, err := s.storedSchemaVersion(ctx)
	if err != nil {
		return err
	}
	switch {
	case !initialized:
		return s.createSchema(ctx)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d (run 'hackercast queue clear' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	default:
		return nil
	}
}

// storedSchemaVersion reports the recorded version and whether the
// database has been initialized at all (schema_version table present).
func (s *Store) storedSchemaVersion(ctx context.Context) (int, bool, error) {
	var tableExists int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err := row.Scan(&tableExists); err != nil {
		return 0, false, fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return 0, false, nil
	}

	var version int
	row = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		return 0, true, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
