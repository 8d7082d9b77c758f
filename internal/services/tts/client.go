package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"hackercast/internal/services"
)

const (
	defaultEndpoint    = "https://texttospeech.googleapis.com/v1/text:synthesize"
	defaultVoice       = "en-US-Neural2-D"
	defaultLanguage    = "en-US"
	defaultHTTPTimeout = 120 * time.Second

	// The synthesize endpoint rejects inputs over 5000 bytes; chunks stay
	// under that with headroom for multi-byte runes.
	maxChunkBytes = 4500
)

// Config captures the runtime settings for speech synthesis.
type Config struct {
	APIKey         string
	Endpoint       string
	Voice          string
	LanguageCode   string
	SpeakingRate   float64
	Pitch          float64
	TimeoutSeconds int
}

// Client wraps the Google Cloud Text-to-Speech REST API.
type Client struct {
	apiKey       string
	endpoint     string
	voice        string
	languageCode string
	speakingRate float64
	pitch        float64
	httpClient   *http.Client
}

// Option customizes the TTS client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a Text-to-Speech client from Config.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	voice := strings.TrimSpace(cfg.Voice)
	if voice == "" {
		voice = defaultVoice
	}
	language := strings.TrimSpace(cfg.LanguageCode)
	if language == "" {
		language = defaultLanguage
	}
	rate := cfg.SpeakingRate
	if rate <= 0 {
		rate = 1.0
	}
	client := &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		endpoint:     endpoint,
		voice:        voice,
		languageCode: language,
		speakingRate: rate,
		pitch:        cfg.Pitch,
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch,omitempty"`
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize renders script text to MP3 bytes. Long scripts are synthesized
// in sentence-aligned chunks and the MP3 streams concatenated.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrPermanent, "tts", "synthesize",
			"Script text is empty; nothing to speak", nil)
	}
	if c.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tts", "synthesize",
			"Text-to-Speech API key is required", nil)
	}

	var audio bytes.Buffer
	for _, chunk := range splitText(text, maxChunkBytes) {
		part, err := c.synthesizeChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		audio.Write(part)
	}
	return audio.Bytes(), nil
}

func (c *Client) synthesizeChunk(ctx context.Context, chunk string) ([]byte, error) {
	payload := synthesizeRequest{
		Input: synthesisInput{Text: chunk},
		Voice: voiceSelection{LanguageCode: c.languageCode, Name: c.voice},
		AudioConfig: audioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  c.speakingRate,
			Pitch:         c.pitch,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetworkError("synthesize", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyNetworkError("synthesize", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("synthesize", resp.StatusCode, body)
	}

	var decoded synthesizeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize",
			"Text-to-Speech response could not be decoded", err)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize",
			"Text-to-Speech audio payload is not valid base64", err)
	}
	if len(audio) == 0 {
		return nil, services.Wrap(services.ErrTransient, "tts", "synthesize",
			"Text-to-Speech returned no audio", nil)
	}
	return audio, nil
}

// HealthCheck lists voices to verify the API key without billing a synthesis.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "tts", "health check",
			"Text-to-Speech API key is required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.voicesURL(), nil)
	if err != nil {
		return fmt.Errorf("tts health check: new request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyNetworkError("health check", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return classifyStatus("health check", resp.StatusCode, body)
	}
	return nil
}

// voicesURL swaps the synthesize method for the voices listing on the same
// API version.
func (c *Client) voicesURL() string {
	if idx := strings.LastIndex(c.endpoint, "/"); idx >= 0 {
		return c.endpoint[:idx] + "/voices?languageCode=" + c.languageCode
	}
	return c.endpoint
}

// splitText breaks text into chunks of at most maxBytes, preferring sentence
// boundaries, then line breaks, then word boundaries.
func splitText(text string, maxBytes int) []string {
	if len(text) <= maxBytes {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxBytes {
		cut := findSplit(remaining, maxBytes)
		chunks = append(chunks, strings.TrimSpace(remaining[:cut]))
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func findSplit(text string, maxBytes int) int {
	window := text[:maxBytes]
	for _, boundary := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.LastIndex(window, boundary); idx > 0 {
			return idx + len(boundary)
		}
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return idx + 1
	}
	// A single unbroken token; cut on a rune boundary.
	cut := maxBytes
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxBytes
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func classifyStatus(op string, status int, body []byte) error {
	err := fmt.Errorf("tts %s: http %d: %s", op, status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "tts", op, "Text-to-Speech rejected the API key", err)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "tts", op, "Text-to-Speech is unavailable", err)
	default:
		return services.Wrap(services.ErrPermanent, "tts", op, "Text-to-Speech rejected the request", err)
	}
}

func classifyNetworkError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "tts", op, "Text-to-Speech request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "tts", op, "Text-to-Speech request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "tts", op, "Text-to-Speech request failed", err)
}
