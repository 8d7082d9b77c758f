package config

const (
	defaultDataDir  = "~/.local/share/hackercast"
	defaultAudioDir = "~/.local/share/hackercast/audio"
	defaultFeedDir  = "~/.local/share/hackercast/feed"
	defaultLogDir   = "~/.local/share/hackercast/logs"

	defaultHNBaseURL   = "https://hacker-news.firebaseio.com/v0"
	defaultStoryCount  = 20
	defaultHNTimeout   = 30
	defaultHNRatePerS  = 5.0
	defaultScraperUA   = "Mozilla/5.0 (compatible; hackercast/1.0)"
	defaultScrapeLimit = 1 << 20
	defaultMinWords    = 50

	defaultGeminiModel       = "gemini-2.0-flash-exp"
	defaultGeminiTimeout     = 120
	defaultGeminiTemperature = 0.7

	defaultTTSEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultTTSVoice    = "en-US-Neural2-D"
	defaultTTSLanguage = "en-US"
	defaultTTSTimeout  = 120

	defaultTransistorBaseURL = "https://api.transistor.fm/v1"
	defaultTransistorTimeout = 120

	defaultWorkers              = 4
	defaultDependencyLimit      = 3
	defaultBatchDeadlineMinutes = 120
	defaultMaxAttempts          = 3
	defaultRetryBaseSeconds     = 2.0
	defaultRetryMaxSeconds      = 60.0
	defaultHeartbeatInterval    = 15
	defaultStageTimeoutSeconds  = 120

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 60

	defaultScheduleCron = "0 6 * * *"

	defaultFeedTitle       = "Hackercast"
	defaultFeedDescription = "Daily audio digest of the top Hacker News stories"
	defaultFeedLanguage    = "en-us"

	defaultNotifyTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

func defaultStageTimeouts() map[string]int {
	return map[string]int{
		"fetch":   30,
		"extract": 60,
		"script":  180,
		"audio":   300,
		"publish": 300,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			FeedDir:  defaultFeedDir,
			LogDir:   defaultLogDir,
		},
		HackerNews: HackerNews{
			BaseURL:           defaultHNBaseURL,
			StoryCount:        defaultStoryCount,
			RequestTimeout:    defaultHNTimeout,
			RequestsPerSecond: defaultHNRatePerS,
		},
		Scraper: Scraper{
			UserAgent:         defaultScraperUA,
			RequestTimeout:    30,
			MaxBodyBytes:      defaultScrapeLimit,
			MinWords:          defaultMinWords,
			RequestsPerSecond: 2.0,
		},
		Gemini: Gemini{
			Model:          defaultGeminiModel,
			RequestTimeout: defaultGeminiTimeout,
			Temperature:    defaultGeminiTemperature,
		},
		TTS: TTS{
			Endpoint:       defaultTTSEndpoint,
			Voice:          defaultTTSVoice,
			LanguageCode:   defaultTTSLanguage,
			SpeakingRate:   1.0,
			RequestTimeout: defaultTTSTimeout,
		},
		Transistor: Transistor{
			BaseURL:        defaultTransistorBaseURL,
			RequestTimeout: defaultTransistorTimeout,
		},
		Pipeline: Pipeline{
			Workers:              defaultWorkers,
			DependencyLimit:      defaultDependencyLimit,
			BatchDeadlineMinutes: defaultBatchDeadlineMinutes,
			MaxAttempts:          defaultMaxAttempts,
			RetryBaseSeconds:     defaultRetryBaseSeconds,
			RetryMaxSeconds:      defaultRetryMaxSeconds,
			HeartbeatInterval:    defaultHeartbeatInterval,
			StageTimeouts:        defaultStageTimeouts(),
		},
		Breaker: Breaker{
			FailureThreshold: defaultBreakerThreshold,
			CooldownSeconds:  defaultBreakerCooldown,
		},
		Schedule: Schedule{
			Enabled: true,
			Cron:    defaultScheduleCron,
		},
		Feed: Feed{
			Title:       defaultFeedTitle,
			Description: defaultFeedDescription,
			Language:    defaultFeedLanguage,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			BatchStart:     true,
			BatchComplete:  true,
			DeadLetter:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
