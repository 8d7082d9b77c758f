package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
	"hackercast/internal/queue"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	deadLetterCmd := &cobra.Command{
		Use:   "deadletter",
		Short: "Inspect and replay dead-lettered items",
	}

	deadLetterCmd.AddCommand(newDeadLetterListCommand(ctx))
	deadLetterCmd.AddCommand(newDeadLetterReplayCommand(ctx))

	return deadLetterCmd
}

// defaultBatchID matches the coordinator's batch naming: one batch per UTC day.
func defaultBatchID() string {
	return time.Now().UTC().Format("2006-01-02")
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	var listBatch string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter records for a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := strings.TrimSpace(listBatch)
			if batch == "" {
				batch = defaultBatchID()
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var entries []ipc.DeadLetterEntry
				if client != nil {
					resp, err := client.DeadLetterList(batch)
					if err != nil {
						return err
					}
					entries = resp.Entries
				} else {
					stored, err := store.DeadLettersByBatch(cmd.Context(), batch)
					if err != nil {
						return err
					}
					entries = make([]ipc.DeadLetterEntry, 0, len(stored))
					for _, entry := range stored {
						entries = append(entries, ipc.DeadLetterEntry{
							ID:           entry.ID,
							BatchID:      entry.BatchID,
							ItemID:       entry.ItemID,
							Stage:        string(entry.Stage),
							ErrorKind:    entry.ErrorKind,
							Message:      entry.Message,
							AttemptCount: entry.AttemptCount,
							CreatedAt:    entry.CreatedAt.Format(time.RFC3339),
						})
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No dead-letter records for batch %s\n", batch)
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ItemID, 10),
						entry.Stage,
						entry.ErrorKind,
						strconv.Itoa(entry.AttemptCount),
						truncate(entry.Message, 56),
						entry.CreatedAt,
					})
				}
				table := renderTable(
					[]string{"Story", "Failed Stage", "Kind", "Attempts", "Message", "Recorded"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&listBatch, "batch", "", "Batch ID (defaults to today's UTC date)")
	return cmd
}

func newDeadLetterReplayCommand(ctx *commandContext) *cobra.Command {
	var replayBatch string

	cmd := &cobra.Command{
		Use:   "replay <itemID>",
		Short: "Reset a dead-lettered item so its failed stage runs again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			batch := strings.TrimSpace(replayBatch)
			if batch == "" {
				batch = defaultBatchID()
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.Item
				if client != nil {
					resp, err := client.Replay(batch, itemID)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.Replay(cmd.Context(), batch, itemID)
					if err != nil {
						return err
					}
					item = ipc.FromQueueItem(stored)
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d reset to stage %s; run batch %s to retry\n",
					item.ItemID, item.Stage, item.BatchID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&replayBatch, "batch", "", "Batch ID (defaults to today's UTC date)")
	return cmd
}
