// Package stageexec runs a single stage attempt loop for a single item.
//
// The executor owns everything between "this item needs stage X" and "stage
// X succeeded or is out of options": the per-dependency circuit breaker
// gate, the per-class concurrency slot, the per-try timeout, retry
// classification, jittered exponential backoff, and persisting attempt
// bookkeeping after every failed try. It deliberately does not advance the
// item's stage or dead-letter it; the workflow manager owns lifecycle
// transitions so the executor can be exercised against any stage handler in
// isolation.
//
// # Attempt Accounting
//
// AttemptCount counts failed tries for the current stage, so a stage with a
// budget of three attempts calls its handler at most three times. The count
// and the last error are written to the store after each failure, which
// keeps the budget accurate across a process crash. Advancing a stage
// resets the count; that is the workflow manager's job.
//
// # Deadlines and Cancellation
//
// Three clocks apply to every try. The per-try timeout bounds one handler
// call and classifies as a retryable timeout. The batch deadline arrives
// through the parent context's deadline and classifies as
// batch_deadline_exceeded, which is never retried. Plain cancellation, such
// as a daemon shutdown, is passed through unwrapped without consuming an
// attempt so the item resumes where it stopped.
//
// A handler that ignores cancellation is abandoned at its try deadline but
// keeps holding its concurrency slot until it actually returns, so the
// per-class bound stays honest even when a dependency hangs.
package stageexec
