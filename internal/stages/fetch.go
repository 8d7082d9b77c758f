package stages

import (
	"context"
	"encoding/json"
	"log/slog"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/hackernews"
	"hackercast/internal/stage"
)

// StoryLookup fetches one story record from Hacker News.
type StoryLookup interface {
	Story(ctx context.Context, id int64) (hackernews.Story, error)
}

// Fetch hydrates an item with its Hacker News story record.
type Fetch struct {
	client StoryLookup
	logger *slog.Logger
}

// NewFetch constructs the fetch stage handler.
func NewFetch(client StoryLookup, logger *slog.Logger) *Fetch {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetch{
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-fetch")),
	}
}

func (f *Fetch) Prepare(ctx context.Context, item *queue.Item) error {
	if item.ItemID <= 0 {
		return services.Wrap(services.ErrPermanent, "fetch", "validate item",
			"Item carries no story ID", nil)
	}
	return nil
}

func (f *Fetch) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, f.logger)
	story, err := f.client.Story(ctx, item.ItemID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(story)
	if err != nil {
		return services.Wrap(services.ErrInternal, "fetch", "encode story",
			"Failed to encode the story record", err)
	}
	item.Title = story.Title
	item.SourceURL = story.ContentURL()
	item.StoryJSON = string(raw)
	logger.Info("story fetched",
		logging.String("title", story.Title),
		logging.String("url", item.SourceURL),
		logging.Int("score", story.Score),
		logging.Int("comments", story.Descendants),
	)
	return nil
}

func (f *Fetch) HealthCheck(ctx context.Context) stage.Health {
	const name = "fetch"
	if f.client == nil {
		return stage.Unhealthy(name, "hacker news client unavailable")
	}
	return stage.Healthy(name)
}
