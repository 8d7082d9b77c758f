package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHackerNews()
	c.normalizeScraper()
	c.normalizeGemini()
	c.normalizeTTS()
	c.normalizeTransistor()
	c.normalizePipeline()
	c.normalizeSchedule()
	c.normalizeFeed()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FeedDir) == "" {
		c.Paths.FeedDir = defaultFeedDir
	}
	if c.Paths.FeedDir, err = expandPath(c.Paths.FeedDir); err != nil {
		return fmt.Errorf("paths.feed_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHackerNews() {
	c.HackerNews.BaseURL = strings.TrimRight(strings.TrimSpace(c.HackerNews.BaseURL), "/")
	if c.HackerNews.BaseURL == "" {
		c.HackerNews.BaseURL = defaultHNBaseURL
	}
	if c.HackerNews.StoryCount <= 0 {
		c.HackerNews.StoryCount = defaultStoryCount
	}
	if c.HackerNews.RequestTimeout <= 0 {
		c.HackerNews.RequestTimeout = defaultHNTimeout
	}
	if c.HackerNews.RequestsPerSecond <= 0 {
		c.HackerNews.RequestsPerSecond = defaultHNRatePerS
	}
}

func (c *Config) normalizeScraper() {
	c.Scraper.UserAgent = strings.TrimSpace(c.Scraper.UserAgent)
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = defaultScraperUA
	}
	if c.Scraper.RequestTimeout <= 0 {
		c.Scraper.RequestTimeout = 30
	}
	if c.Scraper.MaxBodyBytes <= 0 {
		c.Scraper.MaxBodyBytes = defaultScrapeLimit
	}
	if c.Scraper.MinWords <= 0 {
		c.Scraper.MinWords = defaultMinWords
	}
	if c.Scraper.RequestsPerSecond <= 0 {
		c.Scraper.RequestsPerSecond = 2.0
	}
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		}
	}
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	if c.Gemini.RequestTimeout <= 0 {
		c.Gemini.RequestTimeout = defaultGeminiTimeout
	}
	if c.Gemini.Temperature < 0 {
		c.Gemini.Temperature = defaultGeminiTemperature
	}
	if c.Gemini.MaxOutputTokens < 0 {
		c.Gemini.MaxOutputTokens = 0
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" {
		if value, ok := os.LookupEnv("GOOGLE_TTS_API_KEY"); ok {
			c.TTS.APIKey = strings.TrimSpace(value)
		}
	}
	c.TTS.Endpoint = strings.TrimSpace(c.TTS.Endpoint)
	if c.TTS.Endpoint == "" {
		c.TTS.Endpoint = defaultTTSEndpoint
	}
	if strings.TrimSpace(c.TTS.Voice) == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	if strings.TrimSpace(c.TTS.LanguageCode) == "" {
		c.TTS.LanguageCode = defaultTTSLanguage
	}
	if c.TTS.SpeakingRate <= 0 {
		c.TTS.SpeakingRate = 1.0
	}
	if c.TTS.RequestTimeout <= 0 {
		c.TTS.RequestTimeout = defaultTTSTimeout
	}
}

func (c *Config) normalizeTransistor() {
	c.Transistor.APIKey = strings.TrimSpace(c.Transistor.APIKey)
	if c.Transistor.APIKey == "" {
		if value, ok := os.LookupEnv("TRANSISTOR_API_KEY"); ok {
			c.Transistor.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transistor.ShowID = strings.TrimSpace(c.Transistor.ShowID)
	if c.Transistor.ShowID == "" {
		if value, ok := os.LookupEnv("TRANSISTOR_SHOW_ID"); ok {
			c.Transistor.ShowID = strings.TrimSpace(value)
		}
	}
	c.Transistor.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transistor.BaseURL), "/")
	if c.Transistor.BaseURL == "" {
		c.Transistor.BaseURL = defaultTransistorBaseURL
	}
	if c.Transistor.RequestTimeout <= 0 {
		c.Transistor.RequestTimeout = defaultTransistorTimeout
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if c.Pipeline.DependencyLimit <= 0 {
		c.Pipeline.DependencyLimit = defaultDependencyLimit
	}
	if c.Pipeline.BatchDeadlineMinutes <= 0 {
		c.Pipeline.BatchDeadlineMinutes = defaultBatchDeadlineMinutes
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = defaultMaxAttempts
	}
	if c.Pipeline.RetryBaseSeconds <= 0 {
		c.Pipeline.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Pipeline.RetryMaxSeconds <= 0 {
		c.Pipeline.RetryMaxSeconds = defaultRetryMaxSeconds
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		c.Pipeline.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Pipeline.StageTimeouts == nil {
		c.Pipeline.StageTimeouts = defaultStageTimeouts()
	} else {
		merged := defaultStageTimeouts()
		for stage, secs := range c.Pipeline.StageTimeouts {
			merged[strings.ToLower(strings.TrimSpace(stage))] = secs
		}
		c.Pipeline.StageTimeouts = merged
	}
	if c.Pipeline.StageAttempts != nil {
		normalized := make(map[string]int, len(c.Pipeline.StageAttempts))
		for stage, attempts := range c.Pipeline.StageAttempts {
			normalized[strings.ToLower(strings.TrimSpace(stage))] = attempts
		}
		c.Pipeline.StageAttempts = normalized
	}
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Cron = strings.TrimSpace(c.Schedule.Cron)
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = defaultScheduleCron
	}
}

func (c *Config) normalizeFeed() {
	c.Feed.Title = strings.TrimSpace(c.Feed.Title)
	if c.Feed.Title == "" {
		c.Feed.Title = defaultFeedTitle
	}
	c.Feed.Description = strings.TrimSpace(c.Feed.Description)
	if c.Feed.Description == "" {
		c.Feed.Description = defaultFeedDescription
	}
	c.Feed.SiteURL = strings.TrimRight(strings.TrimSpace(c.Feed.SiteURL), "/")
	c.Feed.Author = strings.TrimSpace(c.Feed.Author)
	c.Feed.Language = strings.ToLower(strings.TrimSpace(c.Feed.Language))
	if c.Feed.Language == "" {
		c.Feed.Language = defaultFeedLanguage
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
