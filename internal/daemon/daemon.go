package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"hackercast/internal/config"
	"hackercast/internal/logging"
	"hackercast/internal/notifications"
	"hackercast/internal/queue"
	"hackercast/internal/rss"
	"hackercast/internal/workflow"
)

// Daemon coordinates the background batch schedule and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	feed     *rss.Refresher

	lockPath string
	lock     *flock.Flock

	running     atomic.Bool
	batchActive atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron
	entry  cron.EntryID
	wg     sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	LockPath        string
	DatabasePath    string
	ScheduleEnabled bool
	ScheduleCron    string
	NextRun         *time.Time
	BatchActive     bool
	Workflow        workflow.StatusSummary
}

// New constructs a daemon with initialized dependencies. feed may be nil;
// the daemon then builds its own refresher for feed writes over IPC.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, feed *rss.Refresher) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if feed == nil {
		feed = rss.New(cfg, store, logger)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		feed:     feed,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and begins the batch schedule.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hackercast daemon instance is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	if d.cfg.Schedule.Enabled {
		if err := d.startScheduler(); err != nil {
			d.teardown()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("hackercast daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("schedule_enabled", d.cfg.Schedule.Enabled),
		logging.String("schedule", d.cfg.Schedule.Cron),
	)
	return nil
}

func (d *Daemon) startScheduler() error {
	c := cron.New()
	entry, err := c.AddFunc(d.cfg.Schedule.Cron, d.runScheduledBatch)
	if err != nil {
		return fmt.Errorf("schedule batch run %q: %w", d.cfg.Schedule.Cron, err)
	}
	c.Start()

	d.mu.Lock()
	d.cron = c
	d.entry = entry
	d.mu.Unlock()
	return nil
}

func (d *Daemon) runScheduledBatch() {
	started, message := d.TriggerBatch(workflow.BatchRequest{})
	if !started {
		d.logger.Warn("scheduled batch skipped",
			logging.String(logging.FieldEventType, "schedule_skipped"),
			logging.String("reason", message),
		)
		return
	}
	d.logger.Info("scheduled batch triggered",
		logging.String(logging.FieldEventType, "schedule_triggered"))
}

// TriggerBatch launches a batch run in the background and reports whether it
// was accepted. A trigger while a run is active is refused rather than
// queued; the daily schedule fires again tomorrow and operators can rerun by
// hand.
func (d *Daemon) TriggerBatch(req workflow.BatchRequest) (bool, string) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil || !d.running.Load() {
		return false, "daemon is not running"
	}
	if !d.batchActive.CompareAndSwap(false, true) {
		return false, "a batch run is already in progress"
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.batchActive.Store(false)
		report, err := d.workflow.RunBatch(ctx, req)
		switch {
		case errors.Is(err, context.Canceled):
			d.logger.Info("batch run interrupted by shutdown")
		case err != nil:
			d.logger.Error("batch run failed", logging.Error(err))
		default:
			d.logger.Info("batch run finished",
				logging.String(logging.FieldBatchID, report.BatchID),
				logging.String("outcome", report.Outcome),
				logging.Int("published", report.Published),
				logging.Int("dead_lettered", report.DeadLettered),
			)
		}
	}()
	return true, "batch run started"
}

// Stop halts the schedule, cancels any in-flight batch, and releases the
// lock. In-flight items stay resumable; the next run picks them back up.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.teardown()
	d.running.Store(false)
	d.logger.Info("hackercast daemon stopped")
}

func (d *Daemon) teardown() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	cancel := d.cancel
	d.cancel = nil
	d.ctx = nil
	d.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the stable daemon log location used for tailing.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		LockPath:        d.lockPath,
		DatabasePath:    d.cfg.DatabasePath(),
		ScheduleEnabled: d.cfg.Schedule.Enabled,
		ScheduleCron:    d.cfg.Schedule.Cron,
		BatchActive:     d.batchActive.Load(),
		Workflow:        d.workflow.Status(ctx),
	}
	d.mu.Lock()
	if d.cron != nil {
		next := d.cron.Entry(d.entry).Next
		if !next.IsZero() {
			st.NextRun = &next
		}
	}
	d.mu.Unlock()
	return st
}

// ListItems returns queue items, optionally narrowed to one batch and a set
// of stages.
func (d *Daemon) ListItems(ctx context.Context, batchID string, stages []queue.Stage) ([]*queue.Item, error) {
	if strings.TrimSpace(batchID) == "" {
		return d.store.List(ctx, stages...)
	}
	items, err := d.store.ItemsByBatch(ctx, batchID)
	if err != nil || len(stages) == 0 {
		return items, err
	}
	keep := make(map[queue.Stage]struct{}, len(stages))
	for _, s := range stages {
		keep[s] = struct{}{}
	}
	filtered := make([]*queue.Item, 0, len(items))
	for _, item := range items {
		if _, ok := keep[item.Stage]; ok {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// DescribeItem fetches one queue item by its row ID.
func (d *Daemon) DescribeItem(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.GetByID(ctx, id)
}

// RemoveItems deletes the named queue items by row ID and reports how many
// existed. Unknown IDs are skipped rather than treated as an error.
func (d *Daemon) RemoveItems(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		d.logger.Info("queue items removed",
			logging.String(logging.FieldEventType, "queue_remove"),
			logging.Int64("removed_count", removed))
	}
	return removed, nil
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	removed, err := d.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return removed, nil
}

// ClearTerminal removes published and dead-lettered items.
func (d *Daemon) ClearTerminal(ctx context.Context) (int64, error) {
	removed, err := d.store.ClearTerminal(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("terminal queue items cleared",
		logging.String(logging.FieldEventType, "queue_clear_terminal"),
		logging.Int64("removed_count", removed))
	return removed, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// RecentBatches returns the most recent batch rows, newest first.
func (d *Daemon) RecentBatches(ctx context.Context, limit int) ([]*queue.Batch, error) {
	return d.store.RecentBatches(ctx, limit)
}

// DeadLetters returns the dead-letter log for one batch.
func (d *Daemon) DeadLetters(ctx context.Context, batchID string) ([]*queue.DeadLetter, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, errors.New("batch id is required")
	}
	return d.store.DeadLettersByBatch(ctx, batchID)
}

// ReplayItem resets a dead-lettered item to retry its failed stage on the
// next run of its batch.
func (d *Daemon) ReplayItem(ctx context.Context, batchID string, itemID int64) (*queue.Item, error) {
	item, err := d.store.Replay(ctx, batchID, itemID)
	if err != nil {
		return nil, err
	}
	d.logger.Info("item replayed",
		logging.String(logging.FieldEventType, "item_replayed"),
		logging.String(logging.FieldBatchID, batchID),
		logging.Int64(logging.FieldItemID, itemID),
		logging.String(logging.FieldStage, string(item.Stage)),
	)
	return item, nil
}

// WriteFeed regenerates the RSS feed from the store.
func (d *Daemon) WriteFeed(ctx context.Context) (string, int, error) {
	return d.feed.Write(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send test notification", err
	}
	return true, "test notification sent", nil
}
