package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var socketFlag string
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&socketFlag, &configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "hackercast",
		Short:         "Hackercast daily podcast pipeline CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the hackercast daemon socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable JSON output")

	rootCmd.AddCommand(newDaemonCommands(ctx)...)
	rootCmd.AddCommand(
		newDaemonForegroundCommand(ctx),
		newRunCommand(ctx),
		newQueueCommand(ctx),
		newBatchesCommand(ctx),
		newDeadLetterCommand(ctx),
		newLogsCommand(ctx),
		newFeedCommand(ctx),
		newTestNotifyCommand(ctx),
		newConfigCommand(ctx),
	)

	return rootCmd
}
