package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
	"hackercast/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pipeline items",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listBatch string
	var listStages []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline items",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range listStages {
				if _, ok := queue.ParseStage(raw); !ok {
					return fmt.Errorf("unknown stage %q", raw)
				}
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var items []ipc.Item
				if client != nil {
					resp, err := client.QueueList(listBatch, listStages)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					stored, err := listStoredItems(cmd, store, listBatch, listStages)
					if err != nil {
						return err
					}
					items = make([]ipc.Item, 0, len(stored))
					for _, item := range stored {
						items = append(items, ipc.FromQueueItem(item))
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Batch", "Story", "Title", "Stage", "Attempts", "Updated"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&listBatch, "batch", "", "Only items belonging to this batch")
	cmd.Flags().StringSliceVarP(&listStages, "stage", "s", nil, "Filter by lifecycle stage (repeatable)")
	return cmd
}

func listStoredItems(cmd *cobra.Command, store *queue.Store, batch string, stages []string) ([]*queue.Item, error) {
	parsed := make([]queue.Stage, 0, len(stages))
	for _, raw := range stages {
		stage, ok := queue.ParseStage(raw)
		if !ok {
			continue
		}
		parsed = append(parsed, stage)
	}

	if strings.TrimSpace(batch) == "" {
		return store.List(cmd.Context(), parsed...)
	}

	items, err := store.ItemsByBatch(cmd.Context(), batch)
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return items, nil
	}
	wanted := make(map[queue.Stage]struct{}, len(parsed))
	for _, stage := range parsed {
		wanted[stage] = struct{}{}
	}
	filtered := items[:0]
	for _, item := range items {
		if _, ok := wanted[item.Stage]; ok {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func buildQueueListRows(items []ipc.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.BatchID,
			strconv.FormatInt(item.ItemID, 10),
			truncate(item.Title, 48),
			item.Stage,
			strconv.Itoa(item.AttemptCount),
			item.UpdatedAt,
		})
	}
	return rows
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one pipeline item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.Item
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("queue item %d not found", id)
					}
					item = ipc.FromQueueItem(stored)
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, item)
				}
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				for _, line := range itemDetailLines(item, colorize) {
					fmt.Fprintln(stdout, line)
				}
				return nil
			})
		},
	}
}

func itemDetailLines(item ipc.Item, colorize bool) []string {
	stageKind := statusInfo
	switch item.Stage {
	case string(queue.StagePublished):
		stageKind = statusOK
	case string(queue.StageDeadLettered):
		stageKind = statusError
	}

	lines := []string{
		renderStatusLine("Item", statusInfo, strconv.FormatInt(item.ID, 10), colorize),
		renderStatusLine("Batch", statusInfo, item.BatchID, colorize),
		renderStatusLine("Story", statusInfo, fmt.Sprintf("%d (rank %d)", item.ItemID, item.Rank), colorize),
		renderStatusLine("Title", statusInfo, item.Title, colorize),
		renderStatusLine("Stage", stageKind, item.Stage, colorize),
		renderStatusLine("Attempts", statusInfo, strconv.Itoa(item.AttemptCount), colorize),
	}
	if item.SourceURL != "" {
		lines = append(lines, renderStatusLine("Source", statusInfo, item.SourceURL, colorize))
	}
	if item.AudioPath != "" {
		lines = append(lines, renderStatusLine("Audio", statusInfo, item.AudioPath, colorize))
	}
	if item.EpisodeURL != "" {
		lines = append(lines, renderStatusLine("Episode", statusOK, item.EpisodeURL, colorize))
	}
	if item.LastError != "" {
		detail := item.LastError
		if item.ErrorKind != "" {
			detail = fmt.Sprintf("%s (%s)", item.LastError, item.ErrorKind)
		}
		lines = append(lines, renderStatusLine("Last error", statusError, detail, colorize))
	}
	if item.LastHeartbeat != "" {
		lines = append(lines, renderStatusLine("Heartbeat", statusInfo, item.LastHeartbeat, colorize))
	}
	lines = append(lines,
		renderStatusLine("Created", statusInfo, item.CreatedAt, colorize),
		renderStatusLine("Updated", statusInfo, item.UpdatedAt, colorize),
	)
	return lines
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearTerminal bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove pipeline items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				if client != nil {
					if clearTerminal {
						resp, respErr := client.QueueClearTerminal()
						if respErr != nil {
							return respErr
						}
						removed = resp.Removed
					} else {
						resp, respErr := client.QueueClear()
						if respErr != nil {
							return respErr
						}
						removed = resp.Removed
					}
				} else {
					if clearTerminal {
						removed, err = store.ClearTerminal(cmd.Context())
					} else {
						removed, err = store.Clear(cmd.Context())
					}
					if err != nil {
						return err
					}
				}
				if clearTerminal {
					fmt.Fprintf(out, "Cleared %d terminal items\n", removed)
				} else {
					fmt.Fprintf(out, "Cleared %d queue items\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearTerminal, "terminal", false, "Remove only published and dead-lettered items")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show item store health and database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var summary queue.HealthSummary
				var db queue.DatabaseHealth
				if client != nil {
					healthResp, err := client.QueueHealth()
					if err != nil {
						return err
					}
					summary = queue.HealthSummary{
						Total:        healthResp.Total,
						Pending:      healthResp.Pending,
						Processing:   healthResp.Processing,
						Published:    healthResp.Published,
						DeadLettered: healthResp.DeadLettered,
					}
					dbResp, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					db = queue.DatabaseHealth{
						DBPath:           dbResp.DBPath,
						DatabaseExists:   dbResp.DatabaseExists,
						DatabaseReadable: dbResp.DatabaseReadable,
						SchemaVersion:    dbResp.SchemaVersion,
						TablesPresent:    dbResp.TablesPresent,
						MissingTables:    dbResp.MissingTables,
						IntegrityCheck:   dbResp.IntegrityCheck,
						TotalItems:       dbResp.TotalItems,
						Error:            dbResp.Error,
					}
				} else {
					var err error
					summary, err = store.Health(cmd.Context())
					if err != nil {
						return err
					}
					db, err = store.CheckHealth(cmd.Context())
					if err != nil {
						return err
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, struct {
						Summary  queue.HealthSummary  `json:"summary"`
						Database queue.DatabaseHealth `json:"database"`
					}{summary, db})
				}

				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Total: %d\nPending: %d\nProcessing: %d\nPublished: %d\nDead-lettered: %d\n",
					summary.Total,
					summary.Pending,
					summary.Processing,
					summary.Published,
					summary.DeadLettered,
				)

				colorize := shouldColorize(stdout)
				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Path", statusInfo, db.DBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Exists", boolStatusKind(db.DatabaseExists), "", colorize))
				fmt.Fprintln(stdout, renderStatusLine("Readable", boolStatusKind(db.DatabaseReadable), "", colorize))
				fmt.Fprintln(stdout, renderStatusLine("Schema", statusInfo, db.SchemaVersion, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Integrity", boolStatusKind(db.IntegrityCheck), "", colorize))
				if len(db.MissingTables) > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Missing tables", statusError, strings.Join(db.MissingTables, ", "), colorize))
				}
				if db.Error != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, db.Error, colorize))
				}
				return nil
			})
		},
	}
}
