// Package workflow drives batch runs across the registered pipeline stages.
//
// The Manager owns one batch at a time. RunBatch pins the batch's item set
// (enumerating the story source only when the batch is new), fans the
// non-terminal items out to a bounded worker pool, and walks each item
// forward through the fetch, extract, script, audio, and publish handlers.
// Individual stage attempts, retries, and circuit breaking are delegated to
// the stage executor; this package decides what happens around an attempt:
// advancing the item on success, dead-lettering it on terminal failure, and
// leaving it in place on shutdown so a later run resumes it.
//
// A batch ends in exactly one of three outcomes. Every item published means
// full success, at least one published means partial success, none published
// means total failure. The batch deadline bounds the whole run: when it
// elapses, remaining non-terminal items are dead-lettered with the
// batch_deadline_exceeded kind and the batch is finalized rather than left
// hanging. Re-running a finalized batch is a no-op that returns the recorded
// outcome.
package workflow
