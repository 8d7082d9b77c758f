package stages

import (
	"context"
	"log/slog"
	"strings"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/scraper"
	"hackercast/internal/stage"
)

// ArticleScraper retrieves and extracts the readable text of one page.
type ArticleScraper interface {
	Scrape(ctx context.Context, rawURL string) (scraper.Article, error)
}

// Extract turns an item's source URL into article text.
type Extract struct {
	client ArticleScraper
	logger *slog.Logger
}

// NewExtract constructs the extract stage handler.
func NewExtract(client ArticleScraper, logger *slog.Logger) *Extract {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extract{
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-extract")),
	}
}

func (e *Extract) Prepare(ctx context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.SourceURL) == "" {
		return services.Wrap(services.ErrPermanent, "extract", "validate item",
			"Item carries no source URL; the fetch stage output is missing", nil)
	}
	return nil
}

func (e *Extract) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, e.logger)
	article, err := e.client.Scrape(ctx, item.SourceURL)
	if err != nil {
		return err
	}
	item.ArticleText = article.Text
	logger.Info("article extracted",
		logging.String("url", item.SourceURL),
		logging.Int("word_count", article.WordCount),
	)
	return nil
}

func (e *Extract) HealthCheck(ctx context.Context) stage.Health {
	const name = "extract"
	if e.client == nil {
		return stage.Unhealthy(name, "scraper client unavailable")
	}
	return stage.Healthy(name)
}
