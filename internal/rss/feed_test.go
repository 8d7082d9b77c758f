package rss

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/testsupport"
	"hackercast/internal/workflow"
)

var _ workflow.FeedRefresher = (*Refresher)(nil)

func seedPublished(t *testing.T, store *queue.Store, batchID string, itemID int64, rank int, audioPath string) *queue.Item {
	t.Helper()
	item := testsupport.SeedItem(t, store, batchID, itemID, rank, fmt.Sprintf("Story %d", itemID))
	item.ArticleText = "article"
	item.ScriptText = "script"
	item.AudioPath = audioPath
	item.AdvanceTo(queue.StagePublished)
	item.EpisodeURL = fmt.Sprintf("https://share.example/%d", itemID)
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return item
}

func TestWriteRendersPublishedEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Feed.SiteURL = "https://pods.example.com/"
	cfg.Feed.Author = "Hackercast"
	store := testsupport.MustOpenStore(t, cfg)

	audioPath := filepath.Join(t.TempDir(), "101.mp3")
	testsupport.WriteEpisodeAudio(t, audioPath, "mp3-bytes-xx")
	seedPublished(t, store, "2025-06-01", 101, 1, audioPath)
	seedPublished(t, store, "2025-06-01", 102, 2, filepath.Join(t.TempDir(), "missing.mp3"))
	seedPublished(t, store, "2025-06-02", 201, 1, filepath.Join(t.TempDir(), "missing.mp3"))

	refresher := New(cfg, store, logging.NewNop())
	path, count, err := refresher.Write(context.Background())
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if path != cfg.FeedPath() {
		t.Errorf("path = %q, want %q", path, cfg.FeedPath())
	}
	if count != 3 {
		t.Errorf("episode count = %d, want 3", count)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	content := string(raw)

	if !strings.HasPrefix(content, "<?xml") {
		t.Error("feed does not start with an XML declaration")
	}
	for _, want := range []string{
		"<title>Hackercast</title>",
		"<language>en-us</language>",
		"<itunes:author>Hackercast</itunes:author>",
		`<atom:link href="https://pods.example.com/feed.xml" rel="self" type="application/rss+xml">`,
		"<title>Story 101 (2025-06-01 #1)</title>",
		"<link>https://share.example/101</link>",
		"hackercast-2025-06-01-101",
		"Sun, 01 Jun 2025 00:00:00 GMT",
		"Mon, 02 Jun 2025 00:00:00 GMT",
		`url="https://pods.example.com/audio/2025-06-01/101.mp3" length="12" type="audio/mpeg"`,
		`url="https://pods.example.com/audio/2025-06-01/missing.mp3" length="0"`,
		"Discussion: https://news.ycombinator.com/item?id=101",
		"100 points, 0 comments",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("feed missing %q", want)
		}
	}

	// Newest batch first, rank order within a batch.
	newest := strings.Index(content, "hackercast-2025-06-02-201")
	first := strings.Index(content, "hackercast-2025-06-01-101")
	second := strings.Index(content, "hackercast-2025-06-01-102")
	if newest == -1 || first == -1 || second == -1 {
		t.Fatal("feed missing episode GUIDs")
	}
	if !(newest < first && first < second) {
		t.Errorf("episode order wrong: positions %d/%d/%d", newest, first, second)
	}
}

func TestWriteExcludesUnpublishedItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	seedPublished(t, store, "2025-06-03", 301, 1, filepath.Join(t.TempDir(), "missing.mp3"))
	testsupport.SeedItem(t, store, "2025-06-03", 302, 2, "Story 302")
	failed := testsupport.SeedItem(t, store, "2025-06-03", 303, 3, "Story 303")
	failed.SetDeadLettered("permanent_error", "extraction failed")
	if err := store.Update(context.Background(), failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	refresher := New(cfg, store, logging.NewNop())
	path, count, err := refresher.Write(context.Background())
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("episode count = %d, want 1", count)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "hackercast-2025-06-03-301") {
		t.Error("published episode missing from feed")
	}
	for _, absent := range []string{"hackercast-2025-06-03-302", "hackercast-2025-06-03-303"} {
		if strings.Contains(content, absent) {
			t.Errorf("feed contains unpublished item %q", absent)
		}
	}
}

func TestWriteEmptyFeed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	refresher := New(cfg, store, logging.NewNop())
	path, count, err := refresher.Write(context.Background())
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if count != 0 {
		t.Errorf("episode count = %d, want 0", count)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "<channel>") {
		t.Error("empty feed missing channel element")
	}
	if strings.Contains(content, "<item>") {
		t.Error("empty feed contains items")
	}
}

func TestRefreshRewritesExistingFeed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	refresher := New(cfg, store, logging.NewNop())

	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh returned error: %v", err)
	}
	seedPublished(t, store, "2025-06-04", 401, 1, filepath.Join(t.TempDir(), "missing.mp3"))
	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh returned error: %v", err)
	}

	raw, err := os.ReadFile(cfg.FeedPath())
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	if !strings.Contains(string(raw), "hackercast-2025-06-04-401") {
		t.Error("refreshed feed missing the new episode")
	}
}
