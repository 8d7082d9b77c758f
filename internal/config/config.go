package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for daemon state and outputs.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AudioDir string `toml:"audio_dir"`
	FeedDir  string `toml:"feed_dir"`
	LogDir   string `toml:"log_dir"`
}

// HackerNews contains configuration for the Hacker News Firebase API.
type HackerNews struct {
	BaseURL           string  `toml:"base_url"`
	StoryCount        int     `toml:"story_count"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Scraper contains configuration for article retrieval and extraction.
type Scraper struct {
	UserAgent         string  `toml:"user_agent"`
	RequestTimeout    int     `toml:"request_timeout"`
	MaxBodyBytes      int64   `toml:"max_body_bytes"`
	MinWords          int     `toml:"min_words"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Gemini contains configuration for podcast script synthesis.
type Gemini struct {
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	RequestTimeout  int     `toml:"request_timeout"`
	Temperature     float64 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
}

// TTS contains configuration for Google Cloud Text-to-Speech synthesis.
type TTS struct {
	APIKey         string  `toml:"api_key"`
	Endpoint       string  `toml:"endpoint"`
	Voice          string  `toml:"voice"`
	LanguageCode   string  `toml:"language_code"`
	SpeakingRate   float64 `toml:"speaking_rate"`
	Pitch          float64 `toml:"pitch"`
	RequestTimeout int     `toml:"request_timeout"`
}

// Transistor contains configuration for episode publication via Transistor.fm.
type Transistor struct {
	APIKey         string `toml:"api_key"`
	ShowID         string `toml:"show_id"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Pipeline contains batch execution limits: worker counts, retry policy,
// per-stage timeouts, and the batch deadline.
type Pipeline struct {
	Workers              int            `toml:"workers"`
	DependencyLimit      int            `toml:"dependency_limit"`
	BatchDeadlineMinutes int            `toml:"batch_deadline_minutes"`
	MaxAttempts          int            `toml:"max_attempts"`
	RetryBaseSeconds     float64        `toml:"retry_base_seconds"`
	RetryMaxSeconds      float64        `toml:"retry_max_seconds"`
	HeartbeatInterval    int            `toml:"heartbeat_interval"`
	StageTimeouts        map[string]int `toml:"stage_timeouts"`
	StageAttempts        map[string]int `toml:"stage_attempts"`
}

// Breaker contains circuit breaker thresholds shared by all dependency classes.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold"`
	CooldownSeconds  int `toml:"cooldown_seconds"`
}

// Schedule contains the daily batch trigger.
type Schedule struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// Feed contains RSS feed metadata for published episodes.
type Feed struct {
	Enabled     bool   `toml:"enabled"`
	Title       string `toml:"title"`
	Description string `toml:"description"`
	SiteURL     string `toml:"site_url"`
	Author      string `toml:"author"`
	Language    string `toml:"language"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchStart     bool   `toml:"batch_start"`
	BatchComplete  bool   `toml:"batch_complete"`
	DeadLetter     bool   `toml:"dead_letter"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for hackercast.
//
// Configuration sections by subsystem:
//   - Paths: state, audio, feed, and log directories
//   - HackerNews: story ranking source
//   - Scraper: article retrieval and extraction limits
//   - Gemini: script synthesis model settings
//   - TTS: Google Text-to-Speech voice settings
//   - Transistor: episode publication settings
//   - Pipeline: worker counts, retry policy, stage timeouts, batch deadline
//   - Breaker: circuit breaker thresholds per dependency class
//   - Schedule: daily batch cron trigger
//   - Feed: RSS feed metadata
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	HackerNews    HackerNews    `toml:"hackernews"`
	Scraper       Scraper       `toml:"scraper"`
	Gemini        Gemini        `toml:"gemini"`
	TTS           TTS           `toml:"tts"`
	Transistor    Transistor    `toml:"transistor"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Breaker       Breaker       `toml:"breaker"`
	Schedule      Schedule      `toml:"schedule"`
	Feed          Feed          `toml:"feed"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// StageNames lists the pipeline stage names accepted by the per-stage
// timeout and attempt override maps, in execution order.
var StageNames = []string{"fetch", "extract", "script", "audio", "publish"}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hackercast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// ResolvePath reports which configuration file Load would use for the given
// explicit path (which may be empty) and whether it exists, without decoding
// or validating it.
func ResolvePath(path string) (string, bool, error) {
	return resolveConfigPath(path)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/hackercast/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("hackercast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Feed.Enabled && strings.TrimSpace(c.Paths.FeedDir) != "" {
		if err := os.MkdirAll(c.Paths.FeedDir, 0o755); err != nil {
			return fmt.Errorf("create feed directory %q: %w", c.Paths.FeedDir, err)
		}
	}
	return nil
}

// DatabasePath returns the item store location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "hackercast.db")
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "hackercastd.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "hackercastd.lock")
}

// PIDPath returns the daemon process ID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "hackercastd.pid")
}

// FeedPath returns the RSS output file location.
func (c *Config) FeedPath() string {
	return filepath.Join(c.Paths.FeedDir, "feed.xml")
}

// LogPath returns the stable daemon log location. The daemon links this to
// its current per-run log file so tailing survives restarts.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "hackercast.log")
}

// StageTimeout returns the wall-clock limit for a single attempt of the named stage.
func (c *Config) StageTimeout(stage string) time.Duration {
	if secs, ok := c.Pipeline.StageTimeouts[stage]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(defaultStageTimeoutSeconds) * time.Second
}

// StageMaxAttempts returns the attempt budget for the named stage.
func (c *Config) StageMaxAttempts(stage string) int {
	if attempts, ok := c.Pipeline.StageAttempts[stage]; ok && attempts > 0 {
		return attempts
	}
	return c.Pipeline.MaxAttempts
}

// RetryBase returns the base delay for exponential backoff.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Pipeline.RetryBaseSeconds * float64(time.Second))
}

// RetryMax returns the backoff delay ceiling.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.Pipeline.RetryMaxSeconds * float64(time.Second))
}

// BatchDeadline returns the wall-clock budget for one batch run.
func (c *Config) BatchDeadline() time.Duration {
	return time.Duration(c.Pipeline.BatchDeadlineMinutes) * time.Minute
}

// BreakerCooldown returns how long an open breaker waits before admitting a probe.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
