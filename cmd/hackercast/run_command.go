package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"hackercast/internal/daemonrun"
	"hackercast/internal/ipc"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/workflow"
)

const runPollInterval = time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	var batchID string
	var storyIDs []int64
	var storyCount int
	var deadlineMinutes int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline batch to completion",
		Long: `Run executes a full batch: fetch top stories, extract articles, generate
scripts and audio, and publish episodes. When the daemon is running the batch
is triggered over IPC and followed until it finishes; otherwise the pipeline
runs inside this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err == nil {
				defer client.Close()
				return runViaDaemon(cmd, ctx, client, ipc.RunBatchRequest{
					BatchID:         batchID,
					StoryIDs:        storyIDs,
					StoryCount:      storyCount,
					DeadlineMinutes: deadlineMinutes,
				})
			}
			if !isUnavailable(err) {
				return wrapDialError(err, ctx.socketPath())
			}
			return runInProcess(cmd, ctx, workflow.BatchRequest{
				BatchID:    batchID,
				StoryIDs:   storyIDs,
				StoryCount: storyCount,
				Deadline:   time.Duration(deadlineMinutes) * time.Minute,
			})
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Batch ID (defaults to today's UTC date)")
	cmd.Flags().Int64SliceVar(&storyIDs, "story", nil, "Pin specific story IDs instead of fetching the top ranking")
	cmd.Flags().IntVar(&storyCount, "count", 0, "Number of top stories to include (defaults to configured story_count)")
	cmd.Flags().IntVar(&deadlineMinutes, "deadline", 0, "Batch deadline in minutes (defaults to configured batch_deadline_minutes)")
	return cmd
}

// runViaDaemon triggers the batch over IPC and polls status until the daemon
// reports the run finished.
func runViaDaemon(cmd *cobra.Command, ctx *commandContext, client *ipc.Client, req ipc.RunBatchRequest) error {
	resp, err := client.RunBatch(req)
	if err != nil {
		return err
	}
	if !resp.Started {
		return fmt.Errorf("batch not started: %s", resp.Message)
	}
	if !ctx.jsonMode() {
		fmt.Fprintln(cmd.OutOrStdout(), "Batch run started, waiting for completion...")
	}

	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(runPollInterval):
		}

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("poll daemon status: %w", err)
		}
		if status.BatchActive {
			continue
		}
		if status.LastError != "" {
			return fmt.Errorf("batch run failed: %s", status.LastError)
		}
		if status.LastBatch == nil {
			return errors.New("batch finished without a report")
		}
		return printBatchReport(cmd, ctx, status.LastBatch)
	}
}

// runInProcess composes the pipeline inside this process. The daemon instance
// lock is held for the duration so a concurrently started daemon cannot run
// the same batch.
func runInProcess(cmd *cobra.Command, ctx *commandContext, req workflow.BatchRequest) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another hackercast daemon instance is already running")
	}
	defer lock.Unlock()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open item store: %w", err)
	}
	defer store.Close()

	runtime, err := daemonrun.NewRuntime(cmd.Context(), cfg, store, logger)
	if err != nil {
		return err
	}

	report, err := runtime.Manager.RunBatch(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printBatchReport(cmd, ctx, convertReport(report))
}

func convertReport(report *workflow.BatchReport) *ipc.BatchReport {
	dto := &ipc.BatchReport{
		BatchID:         report.BatchID,
		Outcome:         report.Outcome,
		ItemCount:       report.ItemCount,
		Published:       report.Published,
		DeadLettered:    report.DeadLettered,
		DurationSeconds: report.Duration.Seconds(),
	}
	if len(report.KindBreakdown) > 0 {
		dto.KindBreakdown = make(map[string]int, len(report.KindBreakdown))
		for kind, count := range report.KindBreakdown {
			dto.KindBreakdown[kind] = count
		}
	}
	return dto
}

func printBatchReport(cmd *cobra.Command, ctx *commandContext, report *ipc.BatchReport) error {
	if ctx.jsonMode() {
		return writeJSON(cmd, report)
	}
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)
	for _, line := range renderSectionHeader("Batch Report", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range lastBatchLines(report, colorize) {
		fmt.Fprintln(stdout, line)
	}
	return nil
}
