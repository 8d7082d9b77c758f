package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/stageexec"
)

// runItem walks one item forward until it reaches a terminal stage, the run
// context ends, or no handler is registered for its position. Terminal
// failures are resolved to the dead-letter sink here; only shutdown
// cancellation propagates to the caller.
func (m *Manager) runItem(ctx context.Context, item *queue.Item) error {
	for !item.Terminal {
		stg, ok := m.stageFor(item.Stage)
		if !ok {
			logging.WithContext(ctx, m.logger).Warn("no handler registered for item position",
				logging.Int64(logging.FieldItemID, item.ItemID),
				logging.String(logging.FieldStage, string(item.Stage)),
				logging.String(logging.FieldEventType, "stage_unconfigured"),
			)
			return nil
		}
		err := m.executeStage(ctx, stg, item)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.deadLetter(ctx, item, stg.target, err)
		return nil
	}
	return nil
}

func (m *Manager) executeStage(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	stageCtx := services.WithBatchID(ctx, item.BatchID)
	stageCtx = services.WithItemID(stageCtx, item.ItemID)
	stageCtx = services.WithStage(stageCtx, stg.name)
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	logger := logging.WithContext(stageCtx, m.logger)

	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("title", strings.TrimSpace(item.Title)),
		logging.Int(logging.FieldAttempt, item.AttemptCount),
	)

	execErr := m.executeWithHeartbeat(stageCtx, stg, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.setLastError(execErr)
		return execErr
	}

	item.AdvanceTo(stg.target)
	// A finished stage's payload must survive even when the batch deadline
	// fires during the final write.
	if err := m.store.Update(context.WithoutCancel(stageCtx), item); err != nil {
		wrapped := fmt.Errorf("persist stage advance: %w", err)
		logger.Error("failed to persist stage advance",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stage_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		m.setLastError(wrapped)
		return wrapped
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(item.Stage)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	execErr := m.exec.Run(ctx, stageexec.Request{
		Name:    stg.name,
		Class:   stg.class,
		Handler: stg.handler,
		Policy:  m.policyFor(stg.name),
		Item:    item,
	})
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) policyFor(name string) stageexec.Policy {
	return stageexec.Policy{
		MaxAttempts: m.cfg.StageMaxAttempts(name),
		Timeout:     m.cfg.StageTimeout(name),
		RetryBase:   m.cfg.RetryBase(),
		RetryMax:    m.cfg.RetryMax(),
	}
}
