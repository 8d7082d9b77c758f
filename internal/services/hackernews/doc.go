// Package hackernews provides a client for the Hacker News Firebase API.
//
// This package is used by:
//   - Fetch stage: enumerate today's top stories and load per-story metadata
//   - Health checks: report whether the story source is reachable
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.TopStories: list top story identifiers in rank order.
// Client.Story: fetch one story's metadata.
// Client.HealthCheck: verify the API endpoint responds.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 3 attempts by default) and
// rate-limits outbound requests. Context cancellation aborts retries
// immediately.
//
// # Failure Classification
//
// Errors carry the service failure markers: missing, deleted, and dead
// stories fail permanently, HTTP 5xx and network faults fail transiently,
// and deadline expiry surfaces as a timeout.
package hackernews
