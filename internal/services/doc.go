// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, story item IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the canonical failure kinds (timeout, transient_error,
//     dependency_unavailable, permanent_error, internal_error,
//     batch_deadline_exceeded) driving retries, breaker accounting, and
//     dead-letter records.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
