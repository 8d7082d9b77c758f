package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hackercast/internal/queue"
	"hackercast/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	batch, err := store.NewBatch(ctx, "20260825", nil)
	if err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}
	if batch.ID != "20260825" || batch.Completed() {
		t.Fatalf("unexpected batch: %#v", batch)
	}

	item, created, err := store.NewItem(ctx, batch.ID, 41000001, 1, "Show HN: Something", "https://example.com/a", `{"id":41000001}`)
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if !created || item.ID == 0 {
		t.Fatalf("expected new row with ID, got created=%v id=%d", created, item.ID)
	}
	if item.Stage != queue.StagePending || item.AttemptCount != 0 {
		t.Fatalf("expected pending item with zero attempts, got %#v", item)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Show HN: Something" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}

	byKey, err := store.GetByKey(ctx, batch.ID, 41000001)
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if byKey == nil || byKey.ID != item.ID {
		t.Fatalf("expected to find inserted item, got %#v", byKey)
	}
}

func TestNewItemIsIdempotentPerBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewBatch(ctx, "20260825", nil); err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	first, created, err := store.NewItem(ctx, "20260825", 7, 1, "Story", "https://example.com", "{}")
	if err != nil {
		t.Fatalf("NewItem failed: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create a row")
	}

	second, created, err := store.NewItem(ctx, "20260825", 7, 5, "Renamed", "https://example.org", "{}")
	if err != nil {
		t.Fatalf("NewItem repeat failed: %v", err)
	}
	if created {
		t.Fatal("expected repeat insert to be skipped")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row, got %d and %d", first.ID, second.ID)
	}
	if second.Rank != 1 || second.Title != "Story" {
		t.Fatalf("expected original fields preserved, got %#v", second)
	}

	items, err := store.ItemsByBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("ItemsByBatch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
}

func TestUpdatePersistsStagePayloads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.SeedItem(t, store, "20260825", 11, 1, "Payload Story")

	item.AttemptCount = 2
	item.LastError = "scrape: fetch: connection reset"
	item.ErrorKind = "transient_error"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	persisted, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if persisted.AttemptCount != 2 || persisted.ErrorKind != "transient_error" {
		t.Fatalf("expected failed attempt persisted, got %#v", persisted)
	}

	persisted.ArticleText = "Full article body"
	persisted.AdvanceTo(queue.StageContentExtracted)
	if err := store.Update(ctx, persisted); err != nil {
		t.Fatalf("Update after advance failed: %v", err)
	}

	advanced, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if advanced.Stage != queue.StageContentExtracted {
		t.Fatalf("expected stage content_extracted, got %s", advanced.Stage)
	}
	if advanced.AttemptCount != 0 || advanced.LastError != "" || advanced.ErrorKind != "" {
		t.Fatalf("expected attempts and error cleared on advance, got %#v", advanced)
	}
	if advanced.ArticleText != "Full article body" {
		t.Fatalf("expected article text persisted, got %q", advanced.ArticleText)
	}
}

func TestItemsByBatchOrdersByRank(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedBatch(t, store, "20260825")
	for _, entry := range []struct {
		itemID int64
		rank   int
	}{{itemID: 103, rank: 3}, {itemID: 101, rank: 1}, {itemID: 102, rank: 2}} {
		if _, _, err := store.NewItem(ctx, "20260825", entry.itemID, entry.rank, fmt.Sprintf("Story %d", entry.itemID), "", "{}"); err != nil {
			t.Fatalf("NewItem failed: %v", err)
		}
	}

	items, err := store.ItemsByBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("ItemsByBatch failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ItemID != 101 || items[1].ItemID != 102 || items[2].ItemID != 103 {
		t.Fatalf("expected rank order 101,102,103, got %d,%d,%d", items[0].ItemID, items[1].ItemID, items[2].ItemID)
	}
}

func TestNonTerminalByBatchSkipsFinishedItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	pending := testsupport.SeedItem(t, store, "20260825", 1, 1, "Pending")
	published := testsupport.SeedItem(t, store, "20260825", 2, 2, "Published")
	dead := testsupport.SeedItem(t, store, "20260825", 3, 3, "Dead")

	published.AdvanceTo(queue.StagePublished)
	if err := store.Update(ctx, published); err != nil {
		t.Fatalf("Update published failed: %v", err)
	}
	dead.SetDeadLettered("permanent_error", "article too short")
	if err := store.Update(ctx, dead); err != nil {
		t.Fatalf("Update dead failed: %v", err)
	}

	remaining, err := store.NonTerminalByBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("NonTerminalByBatch failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != pending.ID {
		t.Fatalf("expected only the pending item, got %#v", remaining)
	}

	atStage, err := store.ItemsByStage(ctx, "20260825", queue.StageDeadLettered)
	if err != nil {
		t.Fatalf("ItemsByStage failed: %v", err)
	}
	if len(atStage) != 1 || atStage[0].ID != dead.ID {
		t.Fatalf("expected the dead-lettered item, got %#v", atStage)
	}
}

func TestListSupportsStageFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.SeedItem(t, store, "20260825", 1, 1, "A")
	b := testsupport.SeedItem(t, store, "20260825", 2, 2, "B")
	c := testsupport.SeedItem(t, store, "20260825", 3, 3, "C")

	b.AdvanceTo(queue.StageContentFetched)
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	c.SetDeadLettered("timeout", "deadline exceeded")
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != a.ID || items[1].ID != b.ID || items[2].ID != c.ID {
		t.Fatalf("expected rank order A,B,C, got IDs %d,%d,%d", items[0].ID, items[1].ID, items[2].ID)
	}

	filtered, err := store.List(ctx, queue.StageContentFetched, queue.StageDeadLettered)
	if err != nil {
		t.Fatalf("Filtered list failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 items, got %d", len(filtered))
	}
	if filtered[0].ID != b.ID || filtered[1].ID != c.ID {
		t.Fatalf("unexpected filtered order: got %d,%d", filtered[0].ID, filtered[1].ID)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.SeedItem(t, store, "20260825", 5, 1, "Heartbeat")

	if err := store.UpdateHeartbeat(ctx, item.ID); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	updated, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.LastHeartbeat == nil {
		t.Fatal("expected last heartbeat to be set")
	}
	if time.Since(*updated.LastHeartbeat) > time.Minute {
		t.Fatalf("expected fresh heartbeat, got %v", updated.LastHeartbeat)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.SeedItem(t, store, "20260825", 1, 1, "A")
	testsupport.SeedItem(t, store, "20260825", 2, 2, "B")
	c := testsupport.SeedItem(t, store, "20260825", 3, 3, "C")
	d := testsupport.SeedItem(t, store, "20260825", 4, 4, "D")

	a.AdvanceTo(queue.StageScriptGenerated)
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	c.AdvanceTo(queue.StagePublished)
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	d.SetDeadLettered("permanent_error", "boom")
	if err := store.Update(ctx, d); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StagePending] != 1 || stats[queue.StageScriptGenerated] != 1 || stats[queue.StagePublished] != 1 || stats[queue.StageDeadLettered] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	batchStats, err := store.BatchStats(ctx, "20260825")
	if err != nil {
		t.Fatalf("BatchStats failed: %v", err)
	}
	if batchStats[queue.StagePending] != 1 {
		t.Fatalf("unexpected batch stats: %#v", batchStats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 || health.Published != 1 || health.DeadLettered != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

func TestCheckHealthReportsTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected readable database, got %#v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("expected no missing tables, got %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
}

func TestClearVariants(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	keep := testsupport.SeedItem(t, store, "20260825", 1, 1, "Keep")
	done := testsupport.SeedItem(t, store, "20260825", 2, 2, "Done")
	done.AdvanceTo(queue.StagePublished)
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	removed, err := store.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("ClearTerminal failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 terminal item removed, got %d", removed)
	}
	if item, err := store.GetByID(ctx, keep.ID); err != nil || item == nil {
		t.Fatalf("expected non-terminal item kept, got %#v err=%v", item, err)
	}

	ok, err := store.Remove(ctx, keep.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !ok {
		t.Fatal("expected Remove to delete the row")
	}

	testsupport.SeedItem(t, store, "20260826", 9, 1, "Tomorrow")
	if _, err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(items))
	}
	batch, err := store.GetBatch(ctx, "20260826")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch != nil {
		t.Fatalf("expected batches cleared, got %#v", batch)
	}
}

func TestFinalizeBatchExactlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Hour).UTC()
	if _, err := store.NewBatch(ctx, "20260825", &deadline); err != nil {
		t.Fatalf("NewBatch failed: %v", err)
	}

	if err := store.FinalizeBatch(ctx, "20260825", 20, 18, 2, queue.OutcomePartialSuccess); err != nil {
		t.Fatalf("FinalizeBatch failed: %v", err)
	}

	batch, err := store.GetBatch(ctx, "20260825")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if !batch.Completed() || batch.Outcome != queue.OutcomePartialSuccess {
		t.Fatalf("expected finalized batch, got %#v", batch)
	}
	if batch.ItemCount != 20 || batch.Succeeded != 18 || batch.DeadLettered != 2 {
		t.Fatalf("unexpected batch counts: %#v", batch)
	}
	if batch.Deadline == nil {
		t.Fatal("expected deadline persisted")
	}

	err = store.FinalizeBatch(ctx, "20260825", 20, 18, 2, queue.OutcomePartialSuccess)
	if !errors.Is(err, queue.ErrBatchFinalized) {
		t.Fatalf("expected ErrBatchFinalized, got %v", err)
	}
}

func TestRecentBatchesNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for _, id := range []string{"20260823", "20260824", "20260825"} {
		if _, err := store.NewBatch(ctx, id, nil); err != nil {
			t.Fatalf("NewBatch %s failed: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	batches, err := store.RecentBatches(ctx, 2)
	if err != nil {
		t.Fatalf("RecentBatches failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].ID != "20260825" || batches[1].ID != "20260824" {
		t.Fatalf("expected newest first, got %s,%s", batches[0].ID, batches[1].ID)
	}
}
