package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"hackercast/internal/services"
)

const (
	defaultModel       = "gemini-2.0-flash-exp"
	defaultTimeout     = 120 * time.Second
	defaultTemperature = 0.7
)

// Config captures the runtime settings for script synthesis.
type Config struct {
	APIKey          string
	Model           string
	TimeoutSeconds  int
	Temperature     float64
	MaxOutputTokens int
}

// SegmentRequest describes one story to be turned into a podcast segment.
type SegmentRequest struct {
	Title       string
	URL         string
	ArticleText string
}

// Client wraps the Gemini API for podcast script synthesis.
type Client struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int32
}

// NewClient constructs a Gemini-backed script client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "script", "new client",
			"Gemini API key is required", nil)
	}
	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "script", "new client",
			"Gemini client initialization failed", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	return &Client{
		client:      inner,
		model:       model,
		timeout:     timeout,
		temperature: temperature,
		maxTokens:   int32(cfg.MaxOutputTokens),
	}, nil
}

// GenerateSegment produces the spoken script for one story. The returned
// text is plain prose ready for speech synthesis.
func (c *Client) GenerateSegment(ctx context.Context, req SegmentRequest) (string, error) {
	if strings.TrimSpace(req.ArticleText) == "" {
		return "", services.Wrap(services.ErrPermanent, "script", "generate segment",
			"Article text is empty; nothing to summarize", nil)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(c.temperature)),
		SystemInstruction: genai.NewContentFromText(SegmentPrompt, genai.RoleUser),
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.client.Models.GenerateContent(timeoutCtx, c.model,
		[]*genai.Content{genai.NewContentFromText(buildSegmentInput(req), genai.RoleUser)}, config)
	if err != nil {
		return "", classifyGenerateError("generate segment", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", services.Wrap(services.ErrTransient, "script", "generate segment",
			"Gemini returned an empty script", nil)
	}
	return text, nil
}

// HealthCheck issues a minimal generation to verify the API key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0)),
		MaxOutputTokens: 8,
	}
	resp, err := c.client.Models.GenerateContent(timeoutCtx, c.model,
		[]*genai.Content{genai.NewContentFromText("Reply with the single word ok.", genai.RoleUser)}, config)
	if err != nil {
		return classifyGenerateError("health check", err)
	}
	if strings.TrimSpace(responseText(resp)) == "" {
		return services.Wrap(services.ErrTransient, "script", "health check",
			"Gemini returned an empty response", nil)
	}
	return nil
}

// buildSegmentInput assembles the user prompt for one story.
func buildSegmentInput(req SegmentRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Story title: %s\n", strings.TrimSpace(req.Title))
	if url := strings.TrimSpace(req.URL); url != "" {
		fmt.Fprintf(&b, "Story link: %s\n", url)
	}
	b.WriteString("\nArticle text:\n\n")
	b.WriteString(strings.TrimSpace(req.ArticleText))
	return b.String()
}

// responseText concatenates the text parts of the first candidate that has any.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				out.WriteString(part.Text)
			}
		}
		if out.Len() > 0 {
			break
		}
	}
	return out.String()
}

func classifyGenerateError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "script", op, "Gemini request timed out", err)
	default:
		return services.Wrap(services.ErrTransient, "script", op, "Gemini request failed", err)
	}
}
