package stages

import (
	"context"
	"log/slog"
	"strings"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/script"
	"hackercast/internal/stage"
)

// SegmentWriter synthesizes one podcast segment script.
type SegmentWriter interface {
	GenerateSegment(ctx context.Context, req script.SegmentRequest) (string, error)
}

// Script turns an item's article text into a podcast segment script.
type Script struct {
	client SegmentWriter
	logger *slog.Logger
}

// NewScript constructs the script stage handler.
func NewScript(client SegmentWriter, logger *slog.Logger) *Script {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Script{
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-script")),
	}
}

func (s *Script) Prepare(ctx context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.ArticleText) == "" {
		return services.Wrap(services.ErrPermanent, "script", "validate item",
			"Item carries no article text; the extract stage output is missing", nil)
	}
	return nil
}

func (s *Script) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, s.logger)
	text, err := s.client.GenerateSegment(ctx, script.SegmentRequest{
		Title:       item.Title,
		URL:         item.SourceURL,
		ArticleText: item.ArticleText,
	})
	if err != nil {
		return err
	}
	item.ScriptText = text
	logger.Info("segment script generated",
		logging.String("title", strings.TrimSpace(item.Title)),
		logging.Int("script_chars", len(text)),
	)
	return nil
}

func (s *Script) HealthCheck(ctx context.Context) stage.Health {
	const name = "script"
	if s.client == nil {
		return stage.Unhealthy(name, "gemini client unavailable")
	}
	return stage.Healthy(name)
}
