package workflow

import (
	"context"

	"hackercast/internal/breaker"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/stage"
)

// StatusSummary represents lightweight pipeline diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastBatch   *BatchReport
	QueueStats  map[queue.Stage]int
	StageHealth map[string]stage.Health
	Breakers    []breaker.Snapshot
}

// Status returns the latest pipeline information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastBatch := m.lastBatch
	stages := append([]pipelineStage(nil), m.stages...)
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		health[stg.name] = stg.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		QueueStats:  stats,
		StageHealth: health,
		Breakers:    m.breakers.Snapshots(),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastBatch != nil {
		snapshot := *lastBatch
		summary.LastBatch = &snapshot
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastBatch(report *BatchReport) {
	m.mu.Lock()
	if report != nil {
		snapshot := *report
		m.lastBatch = &snapshot
	} else {
		m.lastBatch = nil
	}
	m.mu.Unlock()
}
