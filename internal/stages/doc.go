// Package stages implements the pipeline stage handlers: fetch, extract,
// script, audio, and publish. Each handler adapts one collaborator client to
// the stage.Handler contract, reads its input payload from the item, and
// writes exactly one output payload back. Handlers tolerate duplicate
// invocation: fetch and extract are pure, audio writes its file only when
// absent, and publish keys episodes by a deterministic title.
package stages
