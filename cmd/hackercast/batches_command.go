package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
	"hackercast/internal/queue"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var batches []ipc.BatchSummary
				if client != nil {
					resp, err := client.BatchList(limit)
					if err != nil {
						return err
					}
					batches = resp.Batches
				} else {
					stored, err := store.RecentBatches(cmd.Context(), limit)
					if err != nil {
						return err
					}
					batches = make([]ipc.BatchSummary, 0, len(stored))
					for _, batch := range stored {
						summary := ipc.BatchSummary{
							ID:           batch.ID,
							CreatedAt:    batch.CreatedAt.Format(time.RFC3339),
							ItemCount:    batch.ItemCount,
							Succeeded:    batch.Succeeded,
							DeadLettered: batch.DeadLettered,
							Outcome:      batch.Outcome,
						}
						if batch.Deadline != nil {
							summary.Deadline = batch.Deadline.Format(time.RFC3339)
						}
						if batch.CompletedAt != nil {
							summary.CompletedAt = batch.CompletedAt.Format(time.RFC3339)
						}
						batches = append(batches, summary)
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded")
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, batch := range batches {
					outcome := batch.Outcome
					if outcome == "" {
						outcome = "in progress"
					}
					rows = append(rows, []string{
						batch.ID,
						batch.CreatedAt,
						strconv.Itoa(batch.ItemCount),
						strconv.Itoa(batch.Succeeded),
						strconv.Itoa(batch.DeadLettered),
						outcome,
					})
				}
				table := renderTable(
					[]string{"Batch", "Created", "Items", "Published", "Dead-lettered", "Outcome"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of batches to list")
	return cmd
}
