package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHackerNews(); err != nil {
		return err
	}
	if err := c.validateScraper(); err != nil {
		return err
	}
	if err := c.validateGemini(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateTransistor(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateHackerNews() error {
	if c.HackerNews.StoryCount < 1 || c.HackerNews.StoryCount > 500 {
		return errors.New("hackernews.story_count must be between 1 and 500")
	}
	return ensurePositiveMap(map[string]int{
		"hackernews.request_timeout": c.HackerNews.RequestTimeout,
	})
}

func (c *Config) validateScraper() error {
	if c.Scraper.MaxBodyBytes < 1024 {
		return errors.New("scraper.max_body_bytes must be at least 1024")
	}
	if c.Scraper.MinWords < 1 {
		return errors.New("scraper.min_words must be positive")
	}
	return ensurePositiveMap(map[string]int{
		"scraper.request_timeout": c.Scraper.RequestTimeout,
	})
}

func (c *Config) validateGemini() error {
	if c.Gemini.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/hackercast/config.toml"
		}
		return fmt.Errorf("gemini.api_key is required. Set GEMINI_API_KEY env var or edit %s (create with 'hackercast config init')", defaultPath)
	}
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		return errors.New("gemini.temperature must be between 0 and 2")
	}
	return ensurePositiveMap(map[string]int{
		"gemini.request_timeout": c.Gemini.RequestTimeout,
	})
}

func (c *Config) validateTTS() error {
	if c.TTS.APIKey == "" {
		return errors.New("tts.api_key is required. Set GOOGLE_TTS_API_KEY env var or edit the config file")
	}
	if c.TTS.SpeakingRate < 0.25 || c.TTS.SpeakingRate > 4.0 {
		return errors.New("tts.speaking_rate must be between 0.25 and 4.0")
	}
	if c.TTS.Pitch < -20.0 || c.TTS.Pitch > 20.0 {
		return errors.New("tts.pitch must be between -20.0 and 20.0")
	}
	return ensurePositiveMap(map[string]int{
		"tts.request_timeout": c.TTS.RequestTimeout,
	})
}

func (c *Config) validateTransistor() error {
	if c.Transistor.APIKey == "" {
		return errors.New("transistor.api_key is required. Set TRANSISTOR_API_KEY env var or edit the config file")
	}
	if c.Transistor.ShowID == "" {
		return errors.New("transistor.show_id is required. Set TRANSISTOR_SHOW_ID env var or edit the config file")
	}
	return ensurePositiveMap(map[string]int{
		"transistor.request_timeout": c.Transistor.RequestTimeout,
	})
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":                c.Pipeline.Workers,
		"pipeline.dependency_limit":       c.Pipeline.DependencyLimit,
		"pipeline.batch_deadline_minutes": c.Pipeline.BatchDeadlineMinutes,
		"pipeline.max_attempts":           c.Pipeline.MaxAttempts,
		"pipeline.heartbeat_interval":     c.Pipeline.HeartbeatInterval,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetryBaseSeconds <= 0 {
		return errors.New("pipeline.retry_base_seconds must be positive")
	}
	if c.Pipeline.RetryMaxSeconds < c.Pipeline.RetryBaseSeconds {
		return errors.New("pipeline.retry_max_seconds must be >= pipeline.retry_base_seconds")
	}
	if err := validateStageMap("pipeline.stage_timeouts", c.Pipeline.StageTimeouts); err != nil {
		return err
	}
	if err := validateStageMap("pipeline.stage_attempts", c.Pipeline.StageAttempts); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBreaker() error {
	return ensurePositiveMap(map[string]int{
		"breaker.failure_threshold": c.Breaker.FailureThreshold,
		"breaker.cooldown_seconds":  c.Breaker.CooldownSeconds,
	})
}

func (c *Config) validateFeed() error {
	if !c.Feed.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Feed.SiteURL) == "" {
		return errors.New("feed.site_url must be set when feed.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func validateStageMap(key string, values map[string]int) error {
	for stage, value := range values {
		if !knownStage(stage) {
			return fmt.Errorf("%s: unknown stage %q (valid: %s)", key, stage, strings.Join(StageNames, ", "))
		}
		if value <= 0 {
			return fmt.Errorf("%s.%s must be positive", key, stage)
		}
	}
	return nil
}

func knownStage(name string) bool {
	for _, stage := range StageNames {
		if stage == name {
			return true
		}
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
