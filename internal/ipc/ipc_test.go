package ipc_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"hackercast/internal/daemon"
	"hackercast/internal/ipc"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/stage"
	"hackercast/internal/testsupport"
	"hackercast/internal/workflow"
)

type scriptedStage struct {
	name    string
	execute func(ctx context.Context, item *queue.Item) error
}

func (s scriptedStage) Prepare(context.Context, *queue.Item) error { return nil }

func (s scriptedStage) Execute(ctx context.Context, item *queue.Item) error {
	if s.execute != nil {
		return s.execute(ctx, item)
	}
	return nil
}

func (s scriptedStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func passingStageSet() workflow.StageSet {
	return workflow.StageSet{
		Fetch: scriptedStage{name: "fetch", execute: func(_ context.Context, item *queue.Item) error {
			item.Title = fmt.Sprintf("Story %d", item.ItemID)
			item.SourceURL = fmt.Sprintf("https://example.com/%d", item.ItemID)
			item.StoryJSON = fmt.Sprintf(`{"id":%d,"title":"Story %d","score":100}`, item.ItemID, item.ItemID)
			return nil
		}},
		Extract: scriptedStage{name: "extract", execute: func(_ context.Context, item *queue.Item) error {
			item.ArticleText = "Article text."
			return nil
		}},
		Script: scriptedStage{name: "script", execute: func(_ context.Context, item *queue.Item) error {
			item.ScriptText = "Segment script."
			return nil
		}},
		Audio: scriptedStage{name: "audio", execute: func(_ context.Context, item *queue.Item) error {
			item.AudioPath = fmt.Sprintf("/audio/%s/%d.mp3", item.BatchID, item.ItemID)
			return nil
		}},
		Publish: scriptedStage{name: "publish", execute: func(_ context.Context, item *queue.Item) error {
			item.EpisodeURL = fmt.Sprintf("https://share.example/%d", item.ItemID)
			return nil
		}},
	}
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Feed.SiteURL = "https://pods.example.com"
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(passingStageSet())
	d, err := daemon.New(cfg, store, logger, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.PID <= 0 {
		t.Fatalf("expected running daemon, got %#v", status)
	}
	if status.LockPath != cfg.LockPath() || status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected paths in status %#v", status)
	}
	if !status.ScheduleEnabled || status.NextRun == "" {
		t.Fatalf("expected an enabled schedule with a next run, got %#v", status)
	}

	pendingItem := testsupport.SeedItem(t, store, "2025-07-08", 1, 1, "First story")
	doomed := testsupport.SeedItem(t, store, "2025-07-08", 2, 2, "Doomed story")
	doomed.AdvanceTo(queue.StageContentFetched)
	doomed.SetDeadLettered("transient_error", "Scrape returned 503")
	if err := store.Update(ctx, doomed); err != nil {
		t.Fatalf("Update doomed: %v", err)
	}
	if _, err := store.AppendDeadLetter(ctx, queue.DeadLetter{
		BatchID:      "2025-07-08",
		ItemID:       2,
		Stage:        queue.StageContentExtracted,
		ErrorKind:    "transient_error",
		Message:      "Scrape returned 503",
		AttemptCount: 3,
	}); err != nil {
		t.Fatalf("AppendDeadLetter: %v", err)
	}
	published := testsupport.SeedItem(t, store, "2025-07-09", 3, 1, "Published story")
	published.AdvanceTo(queue.StagePublished)
	published.EpisodeURL = "https://share.example/3"
	if err := store.Update(ctx, published); err != nil {
		t.Fatalf("Update published: %v", err)
	}

	listResp, err := client.QueueList("", nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Items) != 3 {
		t.Fatalf("expected 3 queue items, got %d", len(listResp.Items))
	}

	batchResp, err := client.QueueList("2025-07-08", nil)
	if err != nil {
		t.Fatalf("QueueList batch filter failed: %v", err)
	}
	if len(batchResp.Items) != 2 {
		t.Fatalf("expected 2 items in batch, got %d", len(batchResp.Items))
	}

	deadResp, err := client.QueueList("", []string{"dead_lettered", "not-a-stage"})
	if err != nil {
		t.Fatalf("QueueList stage filter failed: %v", err)
	}
	if len(deadResp.Items) != 1 || deadResp.Items[0].ItemID != 2 {
		t.Fatalf("expected only the dead-lettered item, got %#v", deadResp.Items)
	}
	if deadResp.Items[0].ErrorKind != "transient_error" {
		t.Fatalf("expected error kind on wire item, got %#v", deadResp.Items[0])
	}

	describeResp, err := client.QueueDescribe(pendingItem.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if describeResp.Item.Title != "First story" || describeResp.Item.Stage != "pending" {
		t.Fatalf("unexpected item %#v", describeResp.Item)
	}
	if _, err := client.QueueDescribe(0); err == nil {
		t.Fatal("expected QueueDescribe to reject id 0")
	}

	runResp, err := client.RunBatch(ipc.RunBatchRequest{BatchID: "2025-07-10", StoryIDs: []int64{100, 101}})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if !runResp.Started {
		t.Fatalf("expected run to start, got %q", runResp.Message)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		batch, err := store.GetBatch(ctx, "2025-07-10")
		if err != nil {
			t.Fatalf("GetBatch: %v", err)
		}
		if batch != nil && batch.Completed() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for batch to finish")
		}
		time.Sleep(20 * time.Millisecond)
	}
	for {
		status, err = client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if !status.BatchActive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for batch slot release")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status.LastBatch == nil || status.LastBatch.Outcome != queue.OutcomeFullSuccess {
		t.Fatalf("expected full success in status, got %#v", status.LastBatch)
	}
	if status.LastBatch.Published != 2 {
		t.Fatalf("expected 2 published, got %#v", status.LastBatch)
	}
	if status.QueueStats["published"] != 3 {
		t.Fatalf("expected 3 published items in stats, got %#v", status.QueueStats)
	}
	if len(status.StageHealth) != 5 {
		t.Fatalf("expected 5 stage health entries, got %#v", status.StageHealth)
	}

	batchList, err := client.BatchList(10)
	if err != nil {
		t.Fatalf("BatchList failed: %v", err)
	}
	if len(batchList.Batches) != 3 || batchList.Batches[0].ID != "2025-07-10" {
		t.Fatalf("unexpected batch list %#v", batchList.Batches)
	}
	if batchList.Batches[0].Outcome != queue.OutcomeFullSuccess || batchList.Batches[0].CompletedAt == "" {
		t.Fatalf("expected finalized newest batch, got %#v", batchList.Batches[0])
	}

	if _, err := client.DeadLetterList(""); err == nil {
		t.Fatal("expected DeadLetterList to require a batch id")
	}
	dlResp, err := client.DeadLetterList("2025-07-08")
	if err != nil {
		t.Fatalf("DeadLetterList failed: %v", err)
	}
	if len(dlResp.Entries) != 1 || dlResp.Entries[0].Stage != "content_extracted" {
		t.Fatalf("unexpected dead letters %#v", dlResp.Entries)
	}

	replayResp, err := client.Replay("2025-07-08", 2)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if replayResp.Item.Stage != "content_fetched" || replayResp.Item.Terminal {
		t.Fatalf("expected replay to reset before the failed step, got %#v", replayResp.Item)
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if healthResp.Total != 5 || healthResp.Published != 3 || healthResp.Pending != 1 || healthResp.Processing != 1 {
		t.Fatalf("unexpected health response: %#v", healthResp)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "hackercast.db") {
		t.Fatalf("unexpected db path: %s", dbHealth.DBPath)
	}
	if !dbHealth.DatabaseExists || !dbHealth.DatabaseReadable || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}
	if len(dbHealth.MissingTables) != 0 {
		t.Fatalf("expected no missing tables, got %#v", dbHealth.MissingTables)
	}

	feedResp, err := client.FeedWrite()
	if err != nil {
		t.Fatalf("FeedWrite failed: %v", err)
	}
	if feedResp.Path != cfg.FeedPath() || feedResp.Episodes != 3 {
		t.Fatalf("unexpected feed response: %#v", feedResp)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || !strings.Contains(notifyResp.Message, "not configured") {
		t.Fatalf("expected unconfigured notification response, got %#v", notifyResp)
	}

	if err := os.WriteFile(cfg.LogPath(), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "two" || logResp.Lines[1] != "three" {
		t.Fatalf("unexpected log lines %#v", logResp.Lines)
	}
	if logResp.Offset <= 0 {
		t.Fatalf("expected a positive resume offset, got %d", logResp.Offset)
	}
	logFile, err := os.OpenFile(cfg.LogPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	if _, err := logFile.WriteString("four\n"); err != nil {
		t.Fatalf("append log line: %v", err)
	}
	if err := logFile.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}
	followResp, err := client.LogTail(ipc.LogTailRequest{Offset: logResp.Offset, Follow: true, WaitMillis: 2000})
	if err != nil {
		t.Fatalf("LogTail follow failed: %v", err)
	}
	if len(followResp.Lines) != 1 || followResp.Lines[0] != "four" {
		t.Fatalf("unexpected follow lines %#v", followResp.Lines)
	}

	clearTerminalResp, err := client.QueueClearTerminal()
	if err != nil {
		t.Fatalf("QueueClearTerminal failed: %v", err)
	}
	if clearTerminalResp.Removed != 3 {
		t.Fatalf("expected 3 terminal items removed, got %d", clearTerminalResp.Removed)
	}

	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 2 {
		t.Fatalf("expected 2 items cleared, got %d", clearResp.Removed)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestNewServerRequiresDaemon(t *testing.T) {
	_, err := ipc.NewServer(context.Background(), "/tmp/does-not-matter.sock", nil, logging.NewNop())
	if err == nil {
		t.Fatal("expected an error for nil daemon")
	}
}
