package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hackercast/internal/daemonctl"
	"hackercast/internal/ipc"
	"hackercast/internal/queue"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the hackercast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx, startLogLevel),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Log level for the launched daemon (debug, info, warn, error)")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the hackercast daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping batch scheduling...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonStatusLines(statusResp, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			if len(statusResp.StageHealth) > 0 {
				for _, line := range renderSectionHeader("Stage Health", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, health := range statusResp.StageHealth {
					detail := strings.TrimSpace(health.Detail)
					if detail == "" && health.Ready {
						detail = "Ready"
					}
					fmt.Fprintln(stdout, renderStatusLine(health.Name, boolStatusKind(health.Ready), detail, colorize))
				}
				fmt.Fprintln(stdout)
			}

			if len(statusResp.Breakers) > 0 {
				for _, line := range renderSectionHeader("Circuit Breakers", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range breakerLines(statusResp.Breakers, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)
			}

			if statusResp.LastBatch != nil {
				for _, line := range renderSectionHeader("Last Batch", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range lastBatchLines(statusResp.LastBatch, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildQueueStatsRows(statusResp.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			table := renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the hackercast daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Log level for the relaunched daemon (debug, info, warn, error)")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func daemonStatusLines(status *ipc.StatusResponse, colorize bool) []string {
	lines := make([]string, 0, 8)

	runningDetail := ""
	if status.Running && status.PID > 0 {
		runningDetail = fmt.Sprintf("pid %d", status.PID)
	}
	lines = append(lines, renderStatusLine("Running", boolStatusKind(status.Running), runningDetail, colorize))

	scheduleDetail := "disabled"
	scheduleKind := statusInfo
	if status.ScheduleEnabled {
		scheduleDetail = status.ScheduleCron
		if status.NextRun != "" {
			scheduleDetail = fmt.Sprintf("%s (next run %s)", status.ScheduleCron, status.NextRun)
		}
		scheduleKind = statusOK
	}
	lines = append(lines, renderStatusLine("Schedule", scheduleKind, scheduleDetail, colorize))

	batchDetail := "idle"
	if status.BatchActive {
		batchDetail = "batch in progress"
	}
	lines = append(lines, renderStatusLine("Pipeline", statusInfo, batchDetail, colorize))

	if strings.TrimSpace(status.LastError) != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	if status.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	if status.LockPath != "" {
		lines = append(lines, renderStatusLine("Lock", statusInfo, status.LockPath, colorize))
	}
	return lines
}

func breakerLines(breakers []ipc.BreakerStatus, colorize bool) []string {
	lines := make([]string, 0, len(breakers))
	for _, b := range breakers {
		kind := statusOK
		detail := b.State
		switch strings.ToLower(b.State) {
		case "open":
			kind = statusError
			detail = fmt.Sprintf("open (%d consecutive failures", b.Failures)
			if b.OpenedAt != "" {
				detail += fmt.Sprintf(", since %s", b.OpenedAt)
			}
			detail += ")"
		case "half_open":
			kind = statusWarn
			detail = "half-open (probing)"
		default:
			if b.Failures > 0 {
				detail = fmt.Sprintf("closed (%d recent failures)", b.Failures)
			}
		}
		lines = append(lines, renderStatusLine(b.Name, kind, detail, colorize))
	}
	return lines
}

func lastBatchLines(report *ipc.BatchReport, colorize bool) []string {
	kind := statusOK
	switch report.Outcome {
	case queue.OutcomeTotalFailure:
		kind = statusError
	case queue.OutcomePartialSuccess:
		kind = statusWarn
	}
	duration := time.Duration(report.DurationSeconds * float64(time.Second)).Round(time.Second)
	lines := []string{
		renderStatusLine("Batch", statusInfo, report.BatchID, colorize),
		renderStatusLine("Outcome", kind, report.Outcome, colorize),
		renderStatusLine("Items", statusInfo, fmt.Sprintf("%d total, %d published, %d dead-lettered", report.ItemCount, report.Published, report.DeadLettered), colorize),
		renderStatusLine("Duration", statusInfo, duration.String(), colorize),
	}
	if len(report.KindBreakdown) > 0 {
		kinds := make([]string, 0, len(report.KindBreakdown))
		for name := range report.KindBreakdown {
			kinds = append(kinds, name)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, name := range kinds {
			parts = append(parts, fmt.Sprintf("%s=%d", name, report.KindBreakdown[name]))
		}
		lines = append(lines, renderStatusLine("Failure kinds", statusWarn, strings.Join(parts, ", "), colorize))
	}
	return lines
}

// buildQueueStatsRows orders stage counts by pipeline position, dropping
// empty stages.
func buildQueueStatsRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, stage := range queue.AllStages() {
		count, ok := stats[string(stage)]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{string(stage), strconv.Itoa(count)})
	}

	known := make(map[string]struct{}, len(queue.AllStages()))
	for _, stage := range queue.AllStages() {
		known[string(stage)] = struct{}{}
	}
	extras := make([]string, 0)
	for name, count := range stats {
		if _, ok := known[name]; ok || count == 0 {
			continue
		}
		extras = append(extras, name)
	}
	sort.Strings(extras)
	for _, name := range extras {
		rows = append(rows, []string{name, strconv.Itoa(stats[name])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if ctx.socketFlag != nil {
		if socket := strings.TrimSpace(*ctx.socketFlag); socket != "" {
			opts.SocketPath = socket
		}
	}
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	return opts
}
