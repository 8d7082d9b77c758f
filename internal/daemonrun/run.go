package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"hackercast/internal/config"
	"hackercast/internal/daemon"
	"hackercast/internal/ipc"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/rss"
	"hackercast/internal/services/hackernews"
	"hackercast/internal/services/scraper"
	"hackercast/internal/services/script"
	"hackercast/internal/services/transistor"
	"hackercast/internal/services/tts"
	"hackercast/internal/stages"
	"hackercast/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location from config. The CLI
	// threads its --socket flag here so client and daemon agree.
	SocketPath string
}

// clientSet holds the external service clients shared by the stage handlers
// and the startup dependency snapshot.
type clientSet struct {
	stories    *hackernews.Client
	scraper    *scraper.Client
	script     *script.Client
	tts        *tts.Client
	transistor *transistor.Client
}

// Runtime bundles the composed pipeline pieces shared by the daemon loop
// and the CLI's one-shot run path.
type Runtime struct {
	Manager *workflow.Manager
	Feed    *rss.Refresher

	clients clientSet
}

// NewRuntime builds the external service clients, the feed refresher, and a
// fully staged workflow manager over the given store.
func NewRuntime(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("config and store are required")
	}

	clients, err := buildClients(ctx, cfg)
	if err != nil {
		return nil, err
	}

	feed := rss.New(cfg, store, logger)
	managerOpts := []workflow.ManagerOption{workflow.WithSource(clients.stories)}
	if cfg.Feed.Enabled {
		managerOpts = append(managerOpts, workflow.WithFeed(feed))
	}
	manager := workflow.NewManager(cfg, store, logger, managerOpts...)
	manager.ConfigureStages(workflow.StageSet{
		Fetch:   stages.NewFetch(clients.stories, logger),
		Extract: stages.NewExtract(clients.scraper, logger),
		Script:  stages.NewScript(clients.script, logger),
		Audio:   stages.NewAudio(cfg, clients.tts, logger),
		Publish: stages.NewPublish(clients.transistor, logger),
	})

	return &Runtime{Manager: manager, Feed: feed, clients: clients}, nil
}

// Run starts the hackercast daemon runtime loop. It blocks until the context
// is canceled or the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("hackercast-%s.log", runID))

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.LogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update hackercast.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "hackercast-*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open item store", logging.Error(err))
		return err
	}
	defer store.Close()

	runtime, err := NewRuntime(signalCtx, cfg, store, logger)
	if err != nil {
		logger.Error("build pipeline runtime", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, runtime.Manager, runtime.Feed)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and item store access"),
		)
	}

	go runtime.LogDependencySnapshot(signalCtx, logger, cfg)

	<-signalCtx.Done()
	logger.Info("hackercast daemon shutting down")
	return nil
}

func buildClients(ctx context.Context, cfg *config.Config) (clientSet, error) {
	scriptClient, err := script.NewClient(ctx, script.Config{
		APIKey:          cfg.Gemini.APIKey,
		Model:           cfg.Gemini.Model,
		TimeoutSeconds:  cfg.Gemini.RequestTimeout,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
	})
	if err != nil {
		return clientSet{}, fmt.Errorf("create script client: %w", err)
	}

	return clientSet{
		stories: hackernews.NewClient(hackernews.Config{
			BaseURL:           cfg.HackerNews.BaseURL,
			TimeoutSeconds:    cfg.HackerNews.RequestTimeout,
			RequestsPerSecond: cfg.HackerNews.RequestsPerSecond,
		}),
		scraper: scraper.NewClient(scraper.Config{
			UserAgent:         cfg.Scraper.UserAgent,
			TimeoutSeconds:    cfg.Scraper.RequestTimeout,
			MaxBodyBytes:      cfg.Scraper.MaxBodyBytes,
			MinWords:          cfg.Scraper.MinWords,
			RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
		}),
		script: scriptClient,
		tts: tts.NewClient(tts.Config{
			APIKey:         cfg.TTS.APIKey,
			Endpoint:       cfg.TTS.Endpoint,
			Voice:          cfg.TTS.Voice,
			LanguageCode:   cfg.TTS.LanguageCode,
			SpeakingRate:   cfg.TTS.SpeakingRate,
			Pitch:          cfg.TTS.Pitch,
			TimeoutSeconds: cfg.TTS.RequestTimeout,
		}),
		transistor: transistor.NewClient(transistor.Config{
			APIKey:         cfg.Transistor.APIKey,
			ShowID:         cfg.Transistor.ShowID,
			BaseURL:        cfg.Transistor.BaseURL,
			TimeoutSeconds: cfg.Transistor.RequestTimeout,
		}),
	}, nil
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// LogDependencySnapshot probes each external service once and records the
// result. Failures are informational only; batch runs retry per stage.
func (r *Runtime) LogDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	probes := []struct {
		name  string
		check func(context.Context) error
	}{
		{"hackernews", r.clients.stories.HealthCheck},
		{"gemini", r.clients.script.HealthCheck},
		{"tts", r.clients.tts.HealthCheck},
		{"transistor", r.clients.transistor.HealthCheck},
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("gemini_key_present", strings.TrimSpace(cfg.Gemini.APIKey) != ""),
		logging.Bool("tts_key_present", strings.TrimSpace(cfg.TTS.APIKey) != ""),
		logging.Bool("transistor_key_present", strings.TrimSpace(cfg.Transistor.APIKey) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, probe := range probes {
		err := probe.check(checkCtx)
		attrs = append(attrs, logging.Bool(probe.name+"_reachable", err == nil))
		if err != nil {
			logger.Warn("dependency unreachable at startup",
				logging.String(logging.FieldDependency, probe.name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "dependency_unreachable"),
				logging.String(logging.FieldErrorHint, "batch runs will retry; items dead-letter if the outage persists"),
			)
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
