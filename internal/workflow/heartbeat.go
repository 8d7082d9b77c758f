package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
)

const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatMonitor refreshes item heartbeats while a stage handler runs so
// operators can tell a slow stage from a wedged one.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")),
		interval: interval,
	}
}

// StartLoop updates the heartbeat for one item until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					logger.Debug("heartbeat update stopped with the run", logging.Error(err))
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
