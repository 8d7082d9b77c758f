package hackernews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"hackercast/internal/services"
)

const (
	defaultBaseURL        = "https://hacker-news.firebaseio.com/v0"
	defaultHTTPTimeout    = 15 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRequestsPerSec = 5.0
)

// Story is one Hacker News item as served by the Firebase API.
type Story struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Score       int    `json:"score"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	Text        string `json:"text,omitempty"`
	Type        string `json:"type,omitempty"`
	Dead        bool   `json:"dead,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

// DiscussionURL returns the Hacker News comments page for the story.
func (s Story) DiscussionURL() string {
	return fmt.Sprintf("https://news.ycombinator.com/item?id=%d", s.ID)
}

// ContentURL returns the URL to scrape: the story link, or the discussion
// page for text posts that carry no external link.
func (s Story) ContentURL() string {
	if strings.TrimSpace(s.URL) != "" {
		return s.URL
	}
	return s.DiscussionURL()
}

// Config captures the runtime settings required to talk to Hacker News.
type Config struct {
	BaseURL           string
	TimeoutSeconds    int
	RequestsPerSecond float64
}

// Client wraps the Hacker News Firebase API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default transport retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a Hacker News client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}
	client := &Client{
		cfg: Config{
			BaseURL:           strings.TrimSpace(cfg.BaseURL),
			TimeoutSeconds:    cfg.TimeoutSeconds,
			RequestsPerSecond: rps,
		},
		httpClient:       &http.Client{Timeout: timeout},
		limiter:          rate.NewLimiter(rate.Limit(rps), 1),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// TopStories returns the identifiers of today's top stories in rank order,
// truncated to limit.
func (c *Client) TopStories(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	if err := c.getJSONWithRetry(ctx, "topstories.json", &ids); err != nil {
		return nil, c.classify("list top stories", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Story fetches one item's metadata. Missing, deleted, and dead items fail
// permanently: retrying cannot bring them back.
func (c *Client) Story(ctx context.Context, id int64) (Story, error) {
	var story Story
	path := "item/" + strconv.FormatInt(id, 10) + ".json"
	if err := c.getJSONWithRetry(ctx, path, &story); err != nil {
		return Story{}, c.classify("fetch story", err)
	}
	if story.ID == 0 {
		return Story{}, services.Wrap(services.ErrNotFound, "hackernews", "fetch story",
			fmt.Sprintf("Story %d does not exist", id), nil)
	}
	if story.Deleted || story.Dead {
		return Story{}, services.Wrap(services.ErrPermanent, "hackernews", "fetch story",
			fmt.Sprintf("Story %d is deleted or dead", id), nil)
	}
	return story, nil
}

// HealthCheck verifies the API endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	var maxItem int64
	if err := c.getJSONWithRetry(ctx, "maxitem.json", &maxItem); err != nil {
		return c.classify("health check", err)
	}
	return nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("hackernews request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) getJSONWithRetry(ctx context.Context, path string, target any) error {
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = c.getJSONOnce(ctx, path, target)
		if lastErr == nil {
			return nil
		}
		delay, retry := c.retryDelay(ctx, lastErr, attempt, attempts)
		if !retry {
			return lastErr
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) getJSONOnce(ctx context.Context, path string, target any) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return fmt.Errorf("hackernews request: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("hackernews request: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hackernews request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hackernews request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if strings.TrimSpace(string(body)) == "null" {
		// The Firebase API serves "null" for unknown items.
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("hackernews request: decode response: %w", err)
	}
	return nil
}

func (c *Client) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "hackernews", op, "Hacker News request timed out", err)
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "hackernews", op, "Hacker News endpoint not found", err)
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "hackernews", op, "Hacker News is unavailable", err)
		default:
			return services.Wrap(services.ErrPermanent, "hackernews", op, "Hacker News rejected the request", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "hackernews", op, "Hacker News request timed out", err)
	}

	return services.Wrap(services.ErrTransient, "hackernews", op, "Hacker News request failed", err)
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
