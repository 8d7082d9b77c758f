package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"hackercast/internal/logging"
	"hackercast/internal/notifications"
	"hackercast/internal/queue"
	"hackercast/internal/services"
)

const batchIDLayout = "2006-01-02"

// RunBatch executes one batch end to end and returns its report. Running it
// again with the same batch ID resumes unfinished work; a finalized batch is
// returned as-is without re-executing any stage. On shutdown cancellation
// the batch is left open for a later resume and the context error is
// returned.
func (m *Manager) RunBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	if err := m.beginRun(); err != nil {
		return nil, err
	}
	defer m.endRun()

	m.mu.RLock()
	configured := len(m.stages)
	m.mu.RUnlock()
	if configured == 0 {
		return nil, errors.New("no workflow stages configured")
	}

	req = m.withRequestDefaults(req)
	runStart := time.Now()

	ctx = services.WithBatchID(ctx, req.BatchID)
	logger := logging.WithContext(ctx, m.logger)

	deadlineAt := runStart.Add(req.Deadline)
	batch, err := m.store.NewBatch(ctx, req.BatchID, &deadlineAt)
	if err != nil {
		m.setLastError(err)
		return nil, err
	}
	if batch.Completed() {
		logger.Info("batch already finalized; nothing to run",
			logging.String(logging.FieldEventType, "batch_already_complete"),
			logging.String("outcome", batch.Outcome),
		)
		return m.reportForBatch(ctx, batch), nil
	}
	// A resumed batch keeps the deadline it was created with.
	if batch.Deadline != nil {
		deadlineAt = *batch.Deadline
	}

	items, err := m.ensureItems(ctx, req)
	if err != nil {
		m.setLastError(err)
		m.notifyError(ctx, fmt.Sprintf("batch %s", req.BatchID), err)
		return nil, err
	}

	pending, err := m.store.NonTerminalByBatch(ctx, req.BatchID)
	if err != nil {
		m.setLastError(err)
		return nil, err
	}

	logger.Info("batch run started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("item_count", len(items)),
		logging.Int("pending", len(pending)),
		logging.String("deadline", deadlineAt.UTC().Format(time.RFC3339)),
	)
	m.notifyBatchStarted(ctx, req.BatchID, len(items))

	runCtx, cancel := context.WithDeadline(ctx, deadlineAt)
	m.processBatch(runCtx, pending)
	cancel()

	if ctx.Err() != nil {
		logger.Info("batch run interrupted; items stay queued for the next run",
			logging.String(logging.FieldEventType, "batch_interrupted"),
		)
		return nil, ctx.Err()
	}
	if time.Now().After(deadlineAt) {
		m.sweepExpired(ctx, req.BatchID, deadlineAt)
	}

	return m.finalizeBatch(ctx, req.BatchID, runStart)
}

// processBatch fans the pending items out to the worker pool. Workers never
// abandon the channel early: once the run context ends each remaining item
// resolves in one fail-fast pass, so the feeder cannot block.
func (m *Manager) processBatch(ctx context.Context, pending []*queue.Item) {
	if len(pending) == 0 {
		return
	}
	workers := m.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	work := make(chan *queue.Item)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range work {
				if err := m.runItem(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
					logging.WithContext(ctx, m.logger).Error("item run failed",
						logging.Error(err),
						logging.Int64(logging.FieldItemID, item.ItemID),
						logging.String(logging.FieldEventType, "item_run_failed"),
					)
				}
			}
		}()
	}
	for _, item := range pending {
		work <- item
	}
	close(work)
	wg.Wait()
}

// sweepExpired dead-letters whatever the deadline left unresolved. Workers
// handle most expirations inline; this pass covers items parked without a
// handler and any persistence race the pool lost.
func (m *Manager) sweepExpired(ctx context.Context, batchID string, deadlineAt time.Time) {
	logger := logging.WithContext(ctx, m.logger)
	remaining, err := m.store.NonTerminalByBatch(ctx, batchID)
	if err != nil {
		logger.Error("deadline sweep could not list remaining items",
			logging.Error(err),
			logging.String(logging.FieldEventType, "deadline_sweep_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if len(remaining) == 0 {
		return
	}
	logger.Warn("batch deadline elapsed with unfinished items",
		logging.String(logging.FieldEventType, "batch_deadline_exceeded"),
		logging.Int("remaining", len(remaining)),
		logging.String("deadline", deadlineAt.UTC().Format(time.RFC3339)),
	)
	for _, item := range remaining {
		stageName := "batch"
		target := item.Stage
		if stg, ok := m.stageFor(item.Stage); ok {
			stageName = stg.name
			target = stg.target
		} else if next, ok := queue.NextStage(item.Stage); ok {
			target = next
		}
		cause := services.Wrap(services.ErrBatchDeadline, stageName, "finish batch",
			"Batch deadline elapsed before the item completed", context.DeadlineExceeded)
		m.deadLetter(ctx, item, target, cause)
	}
}

func (m *Manager) finalizeBatch(ctx context.Context, batchID string, runStart time.Time) (*BatchReport, error) {
	logger := logging.WithContext(ctx, m.logger)
	items, err := m.store.ItemsByBatch(ctx, batchID)
	if err != nil {
		m.setLastError(err)
		return nil, err
	}
	published, deadLettered := 0, 0
	for _, item := range items {
		switch item.Stage {
		case queue.StagePublished:
			published++
		case queue.StageDeadLettered:
			deadLettered++
		}
	}
	outcome := batchOutcome(len(items), published)
	if err := m.store.FinalizeBatch(ctx, batchID, len(items), published, deadLettered, outcome); err != nil {
		if !errors.Is(err, queue.ErrBatchFinalized) {
			m.setLastError(err)
			return nil, err
		}
		logger.Debug("batch was already finalized", logging.Error(err))
	}

	report := &BatchReport{
		BatchID:       batchID,
		Outcome:       outcome,
		ItemCount:     len(items),
		Published:     published,
		DeadLettered:  deadLettered,
		KindBreakdown: m.kindBreakdown(ctx, batchID),
		Duration:      time.Since(runStart),
	}
	m.setLastBatch(report)

	logger.Info("batch run completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.String("outcome", outcome),
		logging.Int("published", published),
		logging.Int("dead_lettered", deadLettered),
		logging.Duration("batch_duration", report.Duration),
	)
	m.notifyBatchCompleted(ctx, report)

	if report.Published > 0 && m.feed != nil {
		if err := m.feed.Refresh(ctx); err != nil {
			logger.Warn("feed refresh failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "feed_refresh_failed"),
				logging.String(logging.FieldErrorHint, "run the feed write command to regenerate"),
			)
		}
	}
	return report, nil
}

// batchOutcome applies the partial-success rule. An empty batch counts as
// full success: there was nothing to publish and nothing failed.
func batchOutcome(itemCount, published int) string {
	switch {
	case published == itemCount:
		return queue.OutcomeFullSuccess
	case published > 0:
		return queue.OutcomePartialSuccess
	default:
		return queue.OutcomeTotalFailure
	}
}

func (m *Manager) reportForBatch(ctx context.Context, batch *queue.Batch) *BatchReport {
	report := &BatchReport{
		BatchID:       batch.ID,
		Outcome:       batch.Outcome,
		ItemCount:     batch.ItemCount,
		Published:     batch.Succeeded,
		DeadLettered:  batch.DeadLettered,
		KindBreakdown: m.kindBreakdown(ctx, batch.ID),
	}
	if batch.CompletedAt != nil {
		report.Duration = batch.CompletedAt.Sub(batch.CreatedAt)
	}
	m.setLastBatch(report)
	return report
}

// ensureItems pins the batch's item set. Enumeration happens exactly once:
// a batch that already has items keeps them, so resumed runs see the same
// stories the first run did.
func (m *Manager) ensureItems(ctx context.Context, req BatchRequest) ([]*queue.Item, error) {
	items, err := m.store.ItemsByBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}

	ids := req.StoryIDs
	if len(ids) == 0 {
		if m.source == nil {
			return nil, services.Wrap(services.ErrConfiguration, "fetch", "enumerate stories",
				"No story source configured and the batch request names no story IDs", nil)
		}
		ids, err = m.source.TopStories(ctx, req.StoryCount)
		if err != nil {
			return nil, err
		}
	}

	items = make([]*queue.Item, 0, len(ids))
	for i, id := range ids {
		// Rank and a placeholder title; the fetch stage hydrates the rest.
		item, _, err := m.store.NewItem(ctx, req.BatchID, id, i+1, fmt.Sprintf("HN story %d", id), "", "")
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	logging.WithContext(ctx, m.logger).Info("batch items enumerated",
		logging.String(logging.FieldEventType, "batch_enumerated"),
		logging.Int("item_count", len(items)),
	)
	return items, nil
}

func (m *Manager) kindBreakdown(ctx context.Context, batchID string) map[string]int {
	entries, err := m.store.DeadLettersByBatch(context.WithoutCancel(ctx), batchID)
	if err != nil {
		m.logger.Warn("dead letter summary unavailable", logging.Error(err))
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	breakdown := make(map[string]int, len(entries))
	for _, entry := range entries {
		breakdown[entry.ErrorKind]++
	}
	return breakdown
}

func (m *Manager) notifyBatchStarted(ctx context.Context, batchID string, count int) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"batchID": batchID,
		"count":   strconv.Itoa(count),
	}
	if err := m.notifier.Publish(ctx, notifications.EventBatchStarted, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutdown interrupted batch start notification")
		} else {
			m.logger.Debug("batch start notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyBatchCompleted(ctx context.Context, report *BatchReport) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"batchID":      report.BatchID,
		"outcome":      report.Outcome,
		"published":    strconv.Itoa(report.Published),
		"deadLettered": strconv.Itoa(report.DeadLettered),
		"duration":     report.Duration.Round(time.Second).String(),
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventBatchCompleted, payload); err != nil {
		m.logger.Debug("batch completion notification failed", logging.Error(err))
	}
}

func (m *Manager) beginRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("a batch run is already in progress")
	}
	m.running = true
	return nil
}

func (m *Manager) endRun() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Manager) withRequestDefaults(req BatchRequest) BatchRequest {
	if strings.TrimSpace(req.BatchID) == "" {
		req.BatchID = time.Now().UTC().Format(batchIDLayout)
	}
	if req.StoryCount <= 0 {
		req.StoryCount = m.cfg.HackerNews.StoryCount
	}
	if req.Deadline <= 0 {
		req.Deadline = m.cfg.BatchDeadline()
	}
	return req
}
