package transistor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hackercast/internal/services"
)

const (
	defaultBaseURL     = "https://api.transistor.fm/v1"
	defaultHTTPTimeout = 120 * time.Second
	audioContentType   = "audio/mpeg"
)

// Config captures the runtime settings for episode publication.
type Config struct {
	APIKey         string
	ShowID         string
	BaseURL        string
	TimeoutSeconds int
}

// Episode is the published form of one item's audio.
type Episode struct {
	ID       string
	Title    string
	Status   string
	ShareURL string
	MediaURL string
}

// PublishRequest describes one episode to upload and publish.
type PublishRequest struct {
	Title       string
	Summary     string
	Description string
	AudioPath   string
}

// Client wraps the Transistor.fm API.
type Client struct {
	apiKey     string
	showID     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the Transistor client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Transistor API client from Config.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		showID:     strings.TrimSpace(cfg.ShowID),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// PublishEpisode uploads the audio and publishes an episode for it. The
// episode title is the lookup key: a rerun that finds an already published
// episode with the same title returns it instead of creating a duplicate,
// and a rerun that finds a draft finishes publishing it.
func (c *Client) PublishEpisode(ctx context.Context, req PublishRequest) (Episode, error) {
	var empty Episode
	if c.apiKey == "" || c.showID == "" {
		return empty, services.Wrap(services.ErrConfiguration, "transistor", "publish episode",
			"Transistor API key and show id are required", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return empty, services.Wrap(services.ErrPermanent, "transistor", "publish episode",
			"Episode title is required", nil)
	}

	existing, err := c.findEpisode(ctx, req.Title)
	if err != nil {
		return empty, err
	}
	if existing != nil {
		if existing.Status == "published" {
			return *existing, nil
		}
		return c.publishDraft(ctx, existing.ID)
	}

	uploadURL, audioURL, err := c.authorizeUpload(ctx, episodeFilename(req))
	if err != nil {
		return empty, err
	}
	if err := c.uploadAudio(ctx, uploadURL, req.AudioPath); err != nil {
		return empty, err
	}
	draft, err := c.createEpisode(ctx, req, audioURL)
	if err != nil {
		return empty, err
	}
	return c.publishDraft(ctx, draft.ID)
}

// HealthCheck verifies the API key and show id.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" || c.showID == "" {
		return services.Wrap(services.ErrConfiguration, "transistor", "health check",
			"Transistor API key and show id are required", nil)
	}
	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodGet, "shows/"+c.showID, nil, &envelope); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, "transistor", "health check",
				fmt.Sprintf("Show %s does not exist for this API key", c.showID), err)
		}
		return err
	}
	return nil
}

type apiAttributes struct {
	Title     string `json:"title"`
	Status    string `json:"status"`
	ShareURL  string `json:"share_url"`
	MediaURL  string `json:"media_url"`
	UploadURL string `json:"upload_url"`
	AudioURL  string `json:"audio_url"`
}

type apiResource struct {
	ID         string        `json:"id"`
	Attributes apiAttributes `json:"attributes"`
}

type apiEnvelope struct {
	Data apiResource `json:"data"`
}

type apiList struct {
	Data []apiResource `json:"data"`
}

func episodeFromResource(res apiResource) Episode {
	return Episode{
		ID:       res.ID,
		Title:    res.Attributes.Title,
		Status:   res.Attributes.Status,
		ShareURL: res.Attributes.ShareURL,
		MediaURL: res.Attributes.MediaURL,
	}
}

func episodeFilename(req PublishRequest) string {
	if path := strings.TrimSpace(req.AudioPath); path != "" {
		return filepath.Base(path)
	}
	return "episode.mp3"
}

func (c *Client) findEpisode(ctx context.Context, title string) (*Episode, error) {
	query := url.Values{}
	query.Set("show_id", c.showID)
	query.Set("query", title)

	var list apiList
	if err := c.doJSON(ctx, http.MethodGet, "episodes?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}
	for _, res := range list.Data {
		if res.Attributes.Title == title {
			episode := episodeFromResource(res)
			return &episode, nil
		}
	}
	return nil, nil
}

func (c *Client) authorizeUpload(ctx context.Context, filename string) (string, string, error) {
	payload := map[string]string{
		"filename":     filename,
		"content_type": audioContentType,
	}
	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "uploads/authorize", payload, &envelope); err != nil {
		return "", "", err
	}
	uploadURL := envelope.Data.Attributes.UploadURL
	audioURL := envelope.Data.Attributes.AudioURL
	if uploadURL == "" || audioURL == "" {
		return "", "", services.Wrap(services.ErrTransient, "transistor", "authorize upload",
			"Upload authorization response is missing URLs", nil)
	}
	return uploadURL, audioURL, nil
}

// uploadAudio streams the file to the presigned URL. The presigned request
// must not carry the API key header.
func (c *Client) uploadAudio(ctx context.Context, uploadURL, audioPath string) error {
	file, err := os.Open(audioPath)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "transistor", "upload audio",
			fmt.Sprintf("Audio file %q is not readable", audioPath), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrPermanent, "transistor", "upload audio",
			fmt.Sprintf("Audio file %q is not readable", audioPath), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, file)
	if err != nil {
		return fmt.Errorf("transistor upload: new request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", audioContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyNetworkError("upload audio", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus("upload audio", resp.StatusCode, body)
	}
	return nil
}

func (c *Client) createEpisode(ctx context.Context, req PublishRequest, audioURL string) (Episode, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = req.Summary
	}
	payload := map[string]any{
		"episode": map[string]any{
			"show_id":     c.showID,
			"title":       req.Title,
			"summary":     req.Summary,
			"description": description,
			"audio_url":   audioURL,
			"status":      "draft",
		},
	}
	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "episodes", payload, &envelope); err != nil {
		return Episode{}, err
	}
	if envelope.Data.ID == "" {
		return Episode{}, services.Wrap(services.ErrTransient, "transistor", "create episode",
			"Episode creation response is missing an id", nil)
	}
	return episodeFromResource(envelope.Data), nil
}

func (c *Client) publishDraft(ctx context.Context, episodeID string) (Episode, error) {
	payload := map[string]any{
		"episode": map[string]string{"status": "published"},
	}
	var envelope apiEnvelope
	if err := c.doJSON(ctx, http.MethodPatch, "episodes/"+episodeID, payload, &envelope); err != nil {
		return Episode{}, err
	}
	return episodeFromResource(envelope.Data), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, target any) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("transistor request: encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("transistor request: new request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("User-Agent", "hackercast/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyNetworkError("request "+path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyNetworkError("request "+path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return classifyStatus("request "+path, resp.StatusCode, responseBody)
	}
	if target != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, target); err != nil {
			return services.Wrap(services.ErrTransient, "transistor", "request "+path,
				"Transistor response could not be decoded", err)
		}
	}
	return nil
}

func classifyStatus(op string, status int, body []byte) error {
	err := fmt.Errorf("transistor %s: http %d: %s", op, status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "transistor", op, "Transistor rejected the API key", err)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "transistor", op, "Transistor resource does not exist", err)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transistor", op, "Transistor is unavailable", err)
	default:
		return services.Wrap(services.ErrPermanent, "transistor", op, "Transistor rejected the request", err)
	}
}

func classifyNetworkError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "transistor", op, "Transistor request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "transistor", op, "Transistor request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "transistor", op, "Transistor request failed", err)
}
