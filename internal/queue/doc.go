// Package queue persists pipeline batches, items, and dead letters in
// SQLite and exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, and the append-only dead-letter log. Items
// record the forward-only stage enum plus the payload each completed stage
// produced (story JSON, article text, script, audio path, episode URL) so
// a resumed run continues from the last persisted stage without recomputing
// finished work.
//
// The database is treated as transient storage for in-flight runs rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for item semantics; when
// you add new stages or payload fields, update schema.sql and bump
// schemaVersion.
package queue
