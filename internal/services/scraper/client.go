package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"hackercast/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultMaxBodyBytes   = 1 << 20
	defaultMinWords       = 50
	defaultRequestsPerSec = 2.0
	defaultUserAgent      = "Mozilla/5.0 (compatible; hackercast/1.0)"

	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Article is the extracted form of one story's linked page.
type Article struct {
	URL       string
	Title     string
	Text      string
	WordCount int
}

// Config captures the runtime settings for article retrieval.
type Config struct {
	UserAgent         string
	TimeoutSeconds    int
	MaxBodyBytes      int64
	MinWords          int
	RequestsPerSecond float64
}

// Client downloads story pages and extracts their readable text.
type Client struct {
	userAgent    string
	maxBodyBytes int64
	minWords     int
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// Option customizes the scraper client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a scraper client from Config.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	minWords := cfg.MinWords
	if minWords <= 0 {
		minWords = defaultMinWords
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}
	client := &Client{
		userAgent:    userAgent,
		maxBodyBytes: maxBody,
		minWords:     minWords,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Scrape downloads rawURL and extracts its readable article text. Pages that
// are unreachable or rate limited fail transiently; pages that exist but
// cannot yield usable text (wrong content type, oversized body, too little
// prose) fail permanently because a retry would fetch the same page again.
func (c *Client) Scrape(ctx context.Context, rawURL string) (Article, error) {
	var empty Article

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return empty, services.Wrap(services.ErrPermanent, "scraper", "fetch page",
			fmt.Sprintf("Article URL %q is not fetchable", rawURL), err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return empty, err
	}

	body, err := c.fetch(ctx, parsed.String())
	if err != nil {
		return empty, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return empty, services.Wrap(services.ErrPermanent, "scraper", "parse page",
			"Article HTML could not be parsed", err)
	}

	article := extractArticle(doc)
	article.URL = parsed.String()
	if article.WordCount < c.minWords {
		return empty, services.Wrap(services.ErrPermanent, "scraper", "extract text",
			fmt.Sprintf("Article yields %d words, need at least %d", article.WordCount, c.minWords), nil)
	}
	return article, nil
}

func (c *Client) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scraper fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetworkError("fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("fetch page", resp.StatusCode)
	}

	if !allowedContentType(resp.Header.Get("Content-Type")) {
		return nil, services.Wrap(services.ErrPermanent, "scraper", "fetch page",
			fmt.Sprintf("Unsupported content type %q", resp.Header.Get("Content-Type")), nil)
	}
	if declared := resp.Header.Get("Content-Length"); declared != "" {
		if length, err := strconv.ParseInt(declared, 10, 64); err == nil && length > c.maxBodyBytes {
			return nil, services.Wrap(services.ErrPermanent, "scraper", "fetch page",
				fmt.Sprintf("Article body declares %d bytes, limit is %d", length, c.maxBodyBytes), nil)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, classifyNetworkError("fetch page", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, services.Wrap(services.ErrPermanent, "scraper", "fetch page",
			fmt.Sprintf("Article body exceeds the %d byte limit", c.maxBodyBytes), nil)
	}
	return body, nil
}

func allowedContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	switch strings.ToLower(mediaType) {
	case "text/html", "application/xhtml+xml", "text/plain":
		return true
	default:
		return false
	}
}

func classifyStatus(op string, status int) error {
	err := fmt.Errorf("scraper fetch: http %d", status)
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "scraper", op, "Article page does not exist", err)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "scraper", op, "Article host is unavailable", err)
	default:
		return services.Wrap(services.ErrPermanent, "scraper", op, "Article host rejected the request", err)
	}
}

func classifyNetworkError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "scraper", op, "Article fetch timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "scraper", op, "Article fetch timed out", err)
	}
	return services.Wrap(services.ErrTransient, "scraper", op, "Article fetch failed", err)
}
