package stages

import (
	"context"
	"errors"
	"testing"

	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/services/script"
)

type fakeSegmentWriter struct {
	text string
	err  error
	got  script.SegmentRequest
}

func (f *fakeSegmentWriter) GenerateSegment(ctx context.Context, req script.SegmentRequest) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func TestScriptExecuteStoresSegment(t *testing.T) {
	fake := &fakeSegmentWriter{text: "Today on Hackercast: a tiny database built from scratch."}
	handler := NewScript(fake, nil)
	item := &queue.Item{
		BatchID:     "2025-06-01",
		ItemID:      101,
		Title:       "Show HN: My side project",
		SourceURL:   "https://example.com/post",
		ArticleText: "A long writeup about building a tiny database.",
		Stage:       queue.StageContentExtracted,
	}

	if err := handler.Prepare(context.Background(), item); err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if err := handler.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if item.ScriptText != fake.text {
		t.Fatalf("ScriptText = %q, want generated segment", item.ScriptText)
	}
	if fake.got.Title != item.Title || fake.got.URL != item.SourceURL || fake.got.ArticleText != item.ArticleText {
		t.Fatalf("segment request = %+v, want the item's payloads", fake.got)
	}
}

func TestScriptPrepareRejectsMissingArticle(t *testing.T) {
	handler := NewScript(&fakeSegmentWriter{}, nil)
	item := &queue.Item{BatchID: "2025-06-01", ItemID: 101, Stage: queue.StageContentExtracted}

	err := handler.Prepare(context.Background(), item)
	if err == nil {
		t.Fatal("expected Prepare to fail without article text")
	}
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestScriptExecutePropagatesGenerationFailure(t *testing.T) {
	cause := services.Wrap(services.ErrTransient, "script", "generate segment", "Gemini returned HTTP 429", nil)
	handler := NewScript(&fakeSegmentWriter{err: cause}, nil)
	item := &queue.Item{
		BatchID:     "2025-06-01",
		ItemID:      101,
		ArticleText: "Some article text.",
		Stage:       queue.StageContentExtracted,
	}

	err := handler.Execute(context.Background(), item)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected the generation failure to pass through, got %v", err)
	}
	if item.ScriptText != "" {
		t.Fatalf("failed generation must not write script text, got %q", item.ScriptText)
	}
}
