// Package breaker implements per-dependency circuit breakers for the
// pipeline's external collaborators.
//
// Each dependency class (hackernews, scrape, gemini, tts, transistor) gets
// one breaker from an injected Registry. A breaker opens after a configured
// run of consecutive dependency failures, rejects calls for a cooldown
// period, then admits exactly one probe; the probe's outcome decides whether
// the breaker closes or reopens. State transitions are lock-free
// compare-and-swap operations so hot-path checks stay cheap under the
// coordinator's worker concurrency.
package breaker
