package testsupport

import (
	"context"
	"fmt"
	"testing"

	"hackercast/internal/config"
	"hackercast/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedBatch creates a batch row for tests using the provided store.
func SeedBatch(t testing.TB, store *queue.Store, batchID string) *queue.Batch {
	t.Helper()

	batch, err := store.NewBatch(context.Background(), batchID, nil)
	if err != nil {
		t.Fatalf("store.NewBatch: %v", err)
	}
	return batch
}

// SeedItem creates a pending item (and its batch when missing) for tests.
func SeedItem(t testing.TB, store *queue.Store, batchID string, itemID int64, rank int, title string) *queue.Item {
	t.Helper()

	SeedBatch(t, store, batchID)
	storyJSON := fmt.Sprintf(`{"id":%d,"title":%q,"score":100}`, itemID, title)
	item, _, err := store.NewItem(context.Background(), batchID, itemID, rank, title, "https://example.com/story", storyJSON)
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	return item
}
