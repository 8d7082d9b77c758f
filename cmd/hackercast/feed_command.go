package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
	"hackercast/internal/queue"
	"hackercast/internal/rss"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Manage the podcast RSS feed",
	}

	feedCmd.AddCommand(newFeedWriteCommand(ctx))
	return feedCmd
}

func newFeedWriteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "write",
		Short: "Regenerate the RSS feed from published episodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var path string
				var episodes int
				if client != nil {
					resp, err := client.FeedWrite()
					if err != nil {
						return err
					}
					path, episodes = resp.Path, resp.Episodes
				} else {
					cfg, err := ctx.ensureConfig()
					if err != nil {
						return err
					}
					path, episodes, err = rss.New(cfg, store, nil).Write(cmd.Context())
					if err != nil {
						return err
					}
				}

				if ctx.jsonMode() {
					return writeJSON(cmd, struct {
						Path     string `json:"path"`
						Episodes int    `json:"episodes"`
					}{path, episodes})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d episodes to %s\n", episodes, path)
				return nil
			})
		},
	}
}
