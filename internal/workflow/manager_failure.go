package workflow

import (
	"context"
	"errors"
	"strings"

	"hackercast/internal/logging"
	"hackercast/internal/notifications"
	"hackercast/internal/queue"
	"hackercast/internal/services"
)

// deadLetter retires an item whose stage budget is spent. The target stage
// names the lifecycle position the item failed to reach. Persistence runs on
// a detached context so an expired batch deadline cannot lose the record.
func (m *Manager) deadLetter(ctx context.Context, item *queue.Item, target queue.Stage, cause error) {
	logger := logging.WithContext(ctx, m.logger)
	kind := string(services.Classify(cause))
	message := strings.TrimSpace(services.Details(cause))
	if message == "" && cause != nil {
		message = strings.TrimSpace(cause.Error())
	}

	item.SetDeadLettered(kind, message)
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.Update(persistCtx, item); err != nil {
		logger.Error("failed to persist dead-lettered item",
			logging.Error(err),
			logging.String(logging.FieldEventType, "dead_letter_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	entry := queue.DeadLetter{
		BatchID:      item.BatchID,
		ItemID:       item.ItemID,
		Stage:        target,
		ErrorKind:    kind,
		Message:      message,
		AttemptCount: item.AttemptCount,
	}
	if _, err := m.store.AppendDeadLetter(persistCtx, entry); err != nil {
		logger.Error("failed to record dead letter entry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "dead_letter_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}

	attrs := []logging.Attr{
		logging.Alert("item_dead_lettered"),
		logging.String(logging.FieldEventType, "item_dead_lettered"),
		logging.String(logging.FieldErrorKind, kind),
		logging.String("failed_to_reach", string(target)),
		logging.Int(logging.FieldAttempt, item.AttemptCount),
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	logger.Error("item dead-lettered", logging.Args(attrs...)...)

	m.setLastError(cause)
	m.notifyDeadLetter(ctx, item, target, kind)
}

func (m *Manager) notifyDeadLetter(ctx context.Context, item *queue.Item, target queue.Stage, kind string) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"batchID": item.BatchID,
		"title":   item.Title,
		"stage":   string(target),
		"kind":    kind,
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventItemDeadLettered, payload); err != nil {
		m.logger.Debug("dead letter notification failed", logging.Error(err))
	}
}

func (m *Manager) notifyError(ctx context.Context, contextLabel string, cause error) {
	if m.notifier == nil || cause == nil {
		return
	}
	message := strings.TrimSpace(services.Details(cause))
	if message == "" {
		message = strings.TrimSpace(cause.Error())
	}
	payload := notifications.Payload{
		"context": contextLabel,
		"error":   message,
	}
	if err := m.notifier.Publish(ctx, notifications.EventError, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutdown interrupted error notification")
		} else {
			m.logger.Debug("error notification failed", logging.Error(err))
		}
	}
}
