package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
	"hackercast/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			initialLimit := lines
			if initialLimit < 0 {
				initialLimit = 0
			}
			// Zero lines means the whole file, so start from byte zero
			// instead of asking for the last N lines.
			initialOffset := int64(-1)
			if initialLimit == 0 {
				initialOffset = 0
			}

			client, err := ipc.Dial(ctx.socketPath())
			if err == nil {
				defer client.Close()
				return tailViaDaemon(cmd, client, initialOffset, initialLimit, follow)
			}
			if !isUnavailable(err) {
				return wrapDialError(err, ctx.socketPath())
			}

			cfg, cfgErr := ctx.ensureConfig()
			if cfgErr != nil {
				return cfgErr
			}
			return tailLogFile(cmd, cfg.LogPath(), initialOffset, initialLimit, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}

func tailViaDaemon(cmd *cobra.Command, client *ipc.Client, offset int64, limit int, follow bool) error {
	ctx := cmd.Context()
	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: 1000,
		})
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		offset = resp.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// tailLogFile reads the daemon log directly when no daemon is reachable.
func tailLogFile(cmd *cobra.Command, path string, offset int64, limit int, follow bool) error {
	ctx := cmd.Context()
	printed := false
	for {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Limit:  limit,
			Follow: follow,
			Wait:   time.Second,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("tail logs: %w", err)
		}
		for _, line := range result.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		offset = result.Offset
		limit = 0
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
