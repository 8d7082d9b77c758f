package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hackercast/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Long:  "Asks the daemon to push a test message through the configured ntfy topic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if resp != nil && resp.Message != "" {
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				}
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				if resp.Message == "" {
					fmt.Fprintln(cmd.OutOrStdout(), notifyOutcome(resp.Sent))
				}
				return nil
			})
		},
	}
}

func notifyOutcome(sent bool) string {
	if sent {
		return "Test notification sent"
	}
	return "Notification not sent"
}
