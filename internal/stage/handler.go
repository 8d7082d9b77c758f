package stage

import (
	"context"

	"hackercast/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Execute receives a copy of the item and writes its output onto it; the
// executor persists the copy only after Execute returns success. Execute
// must tolerate duplicate invocation with the same input payload: a prior
// attempt's result may not have been durably recorded before a crash, so
// implementations either stay pure or dedupe keyed by batch and item.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}

// Health is a stage's own readiness verdict, reported through the
// daemon status RPC. Detail carries the reason when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
