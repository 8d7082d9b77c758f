package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/hackernews"
	"hackercast/internal/services/transistor"
	"hackercast/internal/stage"
)

// EpisodePublisher uploads and publishes one episode.
type EpisodePublisher interface {
	PublishEpisode(ctx context.Context, req transistor.PublishRequest) (transistor.Episode, error)
}

// Publish uploads an item's audio as a podcast episode. The episode title is
// deterministic per batch and rank, which the client uses to find and reuse
// an episode a prior attempt already created.
type Publish struct {
	client EpisodePublisher
	logger *slog.Logger
}

// NewPublish constructs the publish stage handler.
func NewPublish(client EpisodePublisher, logger *slog.Logger) *Publish {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publish{
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-publish")),
	}
}

func (p *Publish) Prepare(ctx context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.AudioPath) == "" {
		return services.Wrap(services.ErrPermanent, "publish", "validate item",
			"Item carries no audio path; the audio stage output is missing", nil)
	}
	if _, err := os.Stat(item.AudioPath); err != nil {
		return services.Wrap(services.ErrPermanent, "publish", "validate item",
			fmt.Sprintf("Audio file %s is missing or unreadable", item.AudioPath), err)
	}
	return nil
}

func (p *Publish) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, p.logger)
	story, err := stage.ParseStory(item.StoryJSON)
	if err != nil {
		return err
	}

	episode, err := p.client.PublishEpisode(ctx, transistor.PublishRequest{
		Title:       EpisodeTitle(item),
		Summary:     fmt.Sprintf("Top Hacker News story #%d for %s", item.Rank, item.BatchID),
		Description: episodeDescription(item, story),
		AudioPath:   item.AudioPath,
	})
	if err != nil {
		return err
	}
	item.EpisodeURL = episode.ShareURL
	logger.Info("episode published",
		logging.String("episode_id", episode.ID),
		logging.String("share_url", episode.ShareURL),
	)
	return nil
}

func (p *Publish) HealthCheck(ctx context.Context) stage.Health {
	const name = "publish"
	if p.client == nil {
		return stage.Unhealthy(name, "transistor client unavailable")
	}
	return stage.Healthy(name)
}

// EpisodeTitle is the deterministic publication key for an item. Batch and
// rank make it unique, so re-publishing the same item lands on the same
// episode.
func EpisodeTitle(item *queue.Item) string {
	return fmt.Sprintf("%s (%s #%d)", strings.TrimSpace(item.Title), item.BatchID, item.Rank)
}

func episodeDescription(item *queue.Item, story hackernews.Story) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(item.Title))
	if strings.TrimSpace(item.SourceURL) != "" {
		fmt.Fprintf(&b, "Article: %s\n", item.SourceURL)
	}
	fmt.Fprintf(&b, "Discussion: %s\n", story.DiscussionURL())
	fmt.Fprintf(&b, "%d points, %d comments", story.Score, story.Descendants)
	return b.String()
}
