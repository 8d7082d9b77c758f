package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hackercast/internal/breaker"
	"hackercast/internal/config"
	"hackercast/internal/logging"
	"hackercast/internal/notifications"
	"hackercast/internal/queue"
	"hackercast/internal/stageexec"
)

// StorySource enumerates the stories a new batch should cover.
type StorySource interface {
	TopStories(ctx context.Context, limit int) ([]int64, error)
}

// FeedRefresher regenerates the public feed after a run publishes episodes.
type FeedRefresher interface {
	Refresh(ctx context.Context) error
}

// Manager coordinates batch runs across the registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	breakers *breaker.Registry
	exec     *stageexec.Executor
	source   StorySource
	feed     FeedRefresher

	heartbeat *HeartbeatMonitor

	mu        sync.RWMutex
	stages    []pipelineStage
	stageFrom map[queue.Stage]pipelineStage
	running   bool
	lastErr   error
	lastBatch *BatchReport
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	notifier notifications.Service
	breakers *breaker.Registry
	source   StorySource
	feed     FeedRefresher
	execOpts []stageexec.Option
}

// WithNotifier overrides the ntfy-backed notifier (used in tests).
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = notifier
	}
}

// WithBreakers injects a shared circuit breaker registry so other components
// can observe the same breaker state the executor trips.
func WithBreakers(registry *breaker.Registry) ManagerOption {
	return func(o *managerOptions) {
		o.breakers = registry
	}
}

// WithSource sets the story source consulted when a batch request names no
// explicit story IDs.
func WithSource(source StorySource) ManagerOption {
	return func(o *managerOptions) {
		o.source = source
	}
}

// WithFeed registers a feed refresher invoked after runs that published
// at least one episode.
func WithFeed(feed FeedRefresher) ManagerOption {
	return func(o *managerOptions) {
		o.feed = feed
	}
}

// WithExecutorOptions forwards options to the stage executor (used in tests
// to replace the retry sleeper and jitter source).
func WithExecutorOptions(opts ...stageexec.Option) ManagerOption {
	return func(o *managerOptions) {
		o.execOpts = append(o.execOpts, opts...)
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := options.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	breakers := options.breakers
	if breakers == nil {
		breakers = breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.BreakerCooldown())
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logger.With(logging.String(logging.FieldComponent, "workflow-manager")),
		notifier:  notifier,
		breakers:  breakers,
		exec:      stageexec.NewExecutor(store, breakers, cfg.Pipeline.DependencyLimit, logger, options.execOpts...),
		source:    options.source,
		feed:      options.feed,
		heartbeat: NewHeartbeatMonitor(store, logger, time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second),
		stageFrom: make(map[queue.Stage]pipelineStage),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := buildPipeline(set)
	byFrom := make(map[queue.Stage]pipelineStage, len(stages))
	for _, stg := range stages {
		byFrom[stg.from] = stg
	}
	m.mu.Lock()
	m.stages = stages
	m.stageFrom = byFrom
	m.mu.Unlock()
}

func (m *Manager) stageFor(s queue.Stage) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageFrom[s]
	return stg, ok
}
