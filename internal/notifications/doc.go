// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Enumerated event types cover the batch milestones (started, completed,
// item dead-lettered, error) so the workflow can emit consistent messages
// without duplicating HTTP glue, and each event can be suppressed
// individually from the notifications config section.
//
// Extend this package if you need alternative transports; all workflow code
// depends only on the simple Service interface.
package notifications
