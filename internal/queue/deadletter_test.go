package queue_test

import (
	"context"
	"testing"

	"hackercast/internal/queue"
	"hackercast/internal/testsupport"
)

func TestAppendDeadLetterAndListByBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, "20260825", 1, 1, "First")
	testsupport.SeedItem(t, store, "20260825", 2, 2, "Second")

	first, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:      "20260825",
		ItemID:       1,
		Stage:        queue.StageContentFetched,
		ErrorKind:    "timeout",
		Message:      "fetch: story: deadline exceeded",
		AttemptCount: 3,
	})
	if err != nil {
		t.Fatalf("AppendDeadLetter failed: %v", err)
	}
	if first.ID == 0 || first.CreatedAt.IsZero() {
		t.Fatalf("expected recorded entry, got %#v", first)
	}

	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:   "20260825",
		ItemID:    2,
		Stage:     queue.StageContentExtracted,
		ErrorKind: "permanent_error",
		Message:   "script: generate: empty response",
	}); err != nil {
		t.Fatalf("AppendDeadLetter failed: %v", err)
	}

	entries, err := store.DeadLettersByBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("DeadLettersByBatch failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ItemID != 1 || entries[1].ItemID != 2 {
		t.Fatalf("expected recording order, got %d,%d", entries[0].ItemID, entries[1].ItemID)
	}
}

func TestAppendDeadLetterValidatesEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID: "20260825",
		ItemID:  1,
		Stage:   queue.StageContentFetched,
	}); err == nil {
		t.Fatal("expected error when kind missing")
	}

	// Pending is never a failure target; the first step records content_fetched.
	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:   "20260825",
		ItemID:    1,
		Stage:     queue.StagePending,
		ErrorKind: "timeout",
	}); err == nil {
		t.Fatal("expected error for pending stage")
	}
	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:   "20260825",
		ItemID:    1,
		Stage:     queue.StageDeadLettered,
		ErrorKind: "timeout",
	}); err == nil {
		t.Fatal("expected error for dead_lettered stage")
	}
}

func TestLatestDeadLetterPicksNewest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, "20260825", 1, 1, "Story")

	for _, kind := range []string{"timeout", "transient_error"} {
		if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
			BatchID:   "20260825",
			ItemID:    1,
			Stage:     queue.StageContentFetched,
			ErrorKind: kind,
		}); err != nil {
			t.Fatalf("AppendDeadLetter failed: %v", err)
		}
	}

	latest, err := store.LatestDeadLetter(ctx, "20260825", 1)
	if err != nil {
		t.Fatalf("LatestDeadLetter failed: %v", err)
	}
	if latest == nil || latest.ErrorKind != "transient_error" {
		t.Fatalf("expected newest entry, got %#v", latest)
	}

	missing, err := store.LatestDeadLetter(ctx, "20260825", 999)
	if err != nil {
		t.Fatalf("LatestDeadLetter failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown item, got %#v", missing)
	}
}

func TestReplayResetsItemToFailingStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.SeedItem(t, store, "20260825", 1, 1, "Story")

	// Two completed steps, then a terminal failure generating the script.
	// The dead letter names the position the item failed to reach.
	item.ArticleText = "Extracted body"
	item.AdvanceTo(queue.StageContentFetched)
	item.AdvanceTo(queue.StageContentExtracted)
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	item.AttemptCount = 3
	item.SetDeadLettered("timeout", "script: generate: deadline exceeded")
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:      item.BatchID,
		ItemID:       item.ItemID,
		Stage:        queue.StageScriptGenerated,
		ErrorKind:    "timeout",
		Message:      "script: generate: deadline exceeded",
		AttemptCount: 3,
	}); err != nil {
		t.Fatalf("AppendDeadLetter failed: %v", err)
	}
	if err := store.FinalizeBatch(ctx, "20260825", 1, 0, 1, queue.OutcomeTotalFailure); err != nil {
		t.Fatalf("FinalizeBatch failed: %v", err)
	}

	replayed, err := store.Replay(ctx, "20260825", 1)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayed.Stage != queue.StageContentExtracted {
		t.Fatalf("expected reset to content_extracted, got %s", replayed.Stage)
	}
	if replayed.AttemptCount != 0 || replayed.Terminal {
		t.Fatalf("expected cleared attempt state, got %#v", replayed)
	}
	if replayed.LastError != "" || replayed.ErrorKind != "" {
		t.Fatalf("expected cleared error, got %#v", replayed)
	}
	if replayed.ArticleText != "Extracted body" {
		t.Fatalf("expected payload intact, got %q", replayed.ArticleText)
	}

	batch, err := store.GetBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch.Completed() || batch.Outcome != "" {
		t.Fatalf("expected batch reopened, got %#v", batch)
	}

	// The dead-letter log is append-only; replay leaves the record behind.
	entries, err := store.DeadLettersByBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("DeadLettersByBatch failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected dead letter retained, got %d entries", len(entries))
	}
}

func TestReplayRequiresDeadLetteredItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedItem(t, store, "20260825", 1, 1, "Still pending")

	if _, err := store.Replay(ctx, "20260825", 1); err == nil {
		t.Fatal("expected error replaying a non-dead-lettered item")
	}
	if _, err := store.Replay(ctx, "20260825", 42); err == nil {
		t.Fatal("expected error replaying an unknown item")
	}
}
