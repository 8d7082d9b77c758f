package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"hackercast/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set gemini.api_key, tts.api_key, and the transistor credentials")
			fmt.Fprintln(out, "(or export GEMINI_API_KEY, GOOGLE_TTS_API_KEY, TRANSISTOR_API_KEY, TRANSISTOR_SHOW_ID).")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if ctx.jsonMode() {
				return writeJSON(cmd, redactedConfigView(cfg))
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			sections := []struct {
				title string
				lines [][2]string
			}{
				{"Paths", [][2]string{
					{"Data dir", cfg.Paths.DataDir},
					{"Audio dir", cfg.Paths.AudioDir},
					{"Feed dir", cfg.Paths.FeedDir},
					{"Log dir", cfg.Paths.LogDir},
				}},
				{"Sources", [][2]string{
					{"HN base URL", cfg.HackerNews.BaseURL},
					{"Story count", fmt.Sprintf("%d", cfg.HackerNews.StoryCount)},
					{"Scraper UA", cfg.Scraper.UserAgent},
				}},
				{"Synthesis", [][2]string{
					{"Gemini model", cfg.Gemini.Model},
					{"Gemini key", redactSecret(cfg.Gemini.APIKey)},
					{"TTS voice", cfg.TTS.Voice},
					{"TTS key", redactSecret(cfg.TTS.APIKey)},
				}},
				{"Publication", [][2]string{
					{"Transistor show", cfg.Transistor.ShowID},
					{"Transistor key", redactSecret(cfg.Transistor.APIKey)},
					{"Feed enabled", yesNo(cfg.Feed.Enabled)},
					{"Feed title", cfg.Feed.Title},
				}},
				{"Pipeline", [][2]string{
					{"Workers", fmt.Sprintf("%d", cfg.Pipeline.Workers)},
					{"Max attempts", fmt.Sprintf("%d", cfg.Pipeline.MaxAttempts)},
					{"Batch deadline", fmt.Sprintf("%d min", cfg.Pipeline.BatchDeadlineMinutes)},
					{"Breaker threshold", fmt.Sprintf("%d", cfg.Breaker.FailureThreshold)},
				}},
				{"Schedule", [][2]string{
					{"Enabled", yesNo(cfg.Schedule.Enabled)},
					{"Cron", cfg.Schedule.Cron},
				}},
				{"Notifications", [][2]string{
					{"Ntfy topic", cfg.Notifications.NtfyTopic},
				}},
				{"Logging", [][2]string{
					{"Format", cfg.Logging.Format},
					{"Level", cfg.Logging.Level},
					{"Retention", fmt.Sprintf("%d days", cfg.Logging.RetentionDays)},
				}},
			}

			for i, section := range sections {
				if i > 0 {
					fmt.Fprintln(stdout)
				}
				for _, line := range renderSectionHeader(section.title, colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, kv := range section.lines {
					fmt.Fprintln(stdout, renderStatusLine(kv[0], statusInfo, kv[1], colorize))
				}
			}
			return nil
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file location",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var explicit string
			if ctx.configFlag != nil {
				explicit = strings.TrimSpace(*ctx.configFlag)
			}
			path, exists, err := config.ResolvePath(explicit)
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, struct {
					Path   string `json:"path"`
					Exists bool   `json:"exists"`
				}{path, exists})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if !exists {
				fmt.Fprintln(out, "File does not exist yet; create it with `hackercast config init`")
			}
			return nil
		},
	}
}

func redactSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "(not set)"
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// redactedConfigView mirrors the config sections for JSON output with API
// keys masked.
func redactedConfigView(cfg *config.Config) map[string]any {
	return map[string]any{
		"paths": map[string]any{
			"data_dir":  cfg.Paths.DataDir,
			"audio_dir": cfg.Paths.AudioDir,
			"feed_dir":  cfg.Paths.FeedDir,
			"log_dir":   cfg.Paths.LogDir,
		},
		"hackernews": map[string]any{
			"base_url":    cfg.HackerNews.BaseURL,
			"story_count": cfg.HackerNews.StoryCount,
		},
		"scraper": map[string]any{
			"user_agent": cfg.Scraper.UserAgent,
			"min_words":  cfg.Scraper.MinWords,
		},
		"gemini": map[string]any{
			"model":   cfg.Gemini.Model,
			"api_key": redactSecret(cfg.Gemini.APIKey),
		},
		"tts": map[string]any{
			"voice":   cfg.TTS.Voice,
			"api_key": redactSecret(cfg.TTS.APIKey),
		},
		"transistor": map[string]any{
			"show_id": cfg.Transistor.ShowID,
			"api_key": redactSecret(cfg.Transistor.APIKey),
		},
		"pipeline": map[string]any{
			"workers":                cfg.Pipeline.Workers,
			"max_attempts":           cfg.Pipeline.MaxAttempts,
			"batch_deadline_minutes": cfg.Pipeline.BatchDeadlineMinutes,
		},
		"breaker": map[string]any{
			"failure_threshold": cfg.Breaker.FailureThreshold,
			"cooldown_seconds":  cfg.Breaker.CooldownSeconds,
		},
		"schedule": map[string]any{
			"enabled": cfg.Schedule.Enabled,
			"cron":    cfg.Schedule.Cron,
		},
		"feed": map[string]any{
			"enabled": cfg.Feed.Enabled,
			"title":   cfg.Feed.Title,
		},
		"notifications": map[string]any{
			"ntfy_topic": cfg.Notifications.NtfyTopic,
		},
		"logging": map[string]any{
			"format":         cfg.Logging.Format,
			"level":          cfg.Logging.Level,
			"retention_days": cfg.Logging.RetentionDays,
		},
	}
}
