package stages

import (
	"context"
	"errors"
	"testing"

	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/hackernews"
	"hackercast/internal/stage"
)

type fakeStoryLookup struct {
	story hackernews.Story
	err   error
	calls int
}

func (f *fakeStoryLookup) Story(ctx context.Context, id int64) (hackernews.Story, error) {
	f.calls++
	if f.err != nil {
		return hackernews.Story{}, f.err
	}
	return f.story, nil
}

func TestFetchExecuteHydratesItem(t *testing.T) {
	story := hackernews.Story{
		ID:          101,
		Title:       "Show HN: My side project",
		URL:         "https://example.com/post",
		Score:       245,
		By:          "pg",
		Descendants: 87,
	}
	handler := NewFetch(&fakeStoryLookup{story: story}, nil)
	item := &queue.Item{BatchID: "2025-06-01", ItemID: 101, Rank: 1, Stage: queue.StagePending}

	if err := handler.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if item.Title != story.Title {
		t.Fatalf("Title = %q, want %q", item.Title, story.Title)
	}
	if item.SourceURL != "https://example.com/post" {
		t.Fatalf("SourceURL = %q, want story link", item.SourceURL)
	}
	parsed, err := stage.ParseStory(item.StoryJSON)
	if err != nil {
		t.Fatalf("stored story payload does not parse: %v", err)
	}
	if parsed.ID != story.ID || parsed.Score != story.Score {
		t.Fatalf("stored story = %+v, want %+v", parsed, story)
	}
}

func TestFetchExecuteFallsBackToDiscussionURL(t *testing.T) {
	story := hackernews.Story{ID: 102, Title: "Ask HN: How do you test?", Score: 12}
	handler := NewFetch(&fakeStoryLookup{story: story}, nil)
	item := &queue.Item{BatchID: "2025-06-01", ItemID: 102, Rank: 2, Stage: queue.StagePending}

	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if item.SourceURL != story.DiscussionURL() {
		t.Fatalf("SourceURL = %q, want discussion page %q", item.SourceURL, story.DiscussionURL())
	}
}

func TestFetchPrepareRejectsMissingStoryID(t *testing.T) {
	handler := NewFetch(&fakeStoryLookup{}, nil)
	item := &queue.Item{BatchID: "2025-06-01"}

	err := handler.Prepare(context.Background(), item)
	if err == nil {
		t.Fatal("expected Prepare to fail for an item without a story ID")
	}
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestFetchExecutePropagatesClientFailure(t *testing.T) {
	cause := services.Wrap(services.ErrTransient, "fetch", "get story", "HTTP 503 from Hacker News", nil)
	lookup := &fakeStoryLookup{err: cause}
	handler := NewFetch(lookup, nil)
	item := &queue.Item{BatchID: "2025-06-01", ItemID: 103, Rank: 3, Stage: queue.StagePending}

	err := handler.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected the client failure to pass through, got %v", err)
	}
	if item.StoryJSON != "" {
		t.Fatalf("failed fetch must not write a story payload, got %q", item.StoryJSON)
	}
}
