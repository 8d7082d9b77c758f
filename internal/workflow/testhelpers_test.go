package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hackercast/internal/config"
	"hackercast/internal/logging"
	"hackercast/internal/notifications"
	"hackercast/internal/queue"
	"hackercast/internal/stage"
	"hackercast/internal/stageexec"
	"hackercast/internal/testsupport"
)

// stubHandler counts invocations per item and delegates to an optional
// execute override. The default execute writes nothing; pipeline stubs built
// by passingStubs fill in stage payloads.
type stubHandler struct {
	name string

	mu    sync.Mutex
	calls []int64

	prepare func(ctx context.Context, item *queue.Item) error
	execute func(ctx context.Context, item *queue.Item, attempt int) error
}

func (s *stubHandler) Prepare(ctx context.Context, item *queue.Item) error {
	if s.prepare != nil {
		return s.prepare(ctx, item)
	}
	return nil
}

func (s *stubHandler) Execute(ctx context.Context, item *queue.Item) error {
	s.mu.Lock()
	s.calls = append(s.calls, item.ItemID)
	attempt := 0
	for _, id := range s.calls {
		if id == item.ItemID {
			attempt++
		}
	}
	s.mu.Unlock()
	if s.execute != nil {
		return s.execute(ctx, item, attempt)
	}
	return nil
}

func (s *stubHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *stubHandler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubHandler) callsFor(itemID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, id := range s.calls {
		if id == itemID {
			count++
		}
	}
	return count
}

type stageStubs struct {
	fetch   *stubHandler
	extract *stubHandler
	script  *stubHandler
	audio   *stubHandler
	publish *stubHandler
}

func (s stageStubs) set() StageSet {
	return StageSet{
		Fetch:   s.fetch,
		Extract: s.extract,
		Script:  s.script,
		Audio:   s.audio,
		Publish: s.publish,
	}
}

func (s stageStubs) totalCalls() int {
	return s.fetch.callCount() + s.extract.callCount() + s.script.callCount() +
		s.audio.callCount() + s.publish.callCount()
}

// passingStubs builds a full set of handlers that succeed on the first try
// and leave a recognizable payload trail on each item.
func passingStubs() stageStubs {
	return stageStubs{
		fetch: &stubHandler{name: "fetch", execute: func(_ context.Context, item *queue.Item, _ int) error {
			item.Title = fmt.Sprintf("Story %d", item.ItemID)
			item.SourceURL = fmt.Sprintf("https://example.com/%d", item.ItemID)
			item.StoryJSON = fmt.Sprintf(`{"id":%d,"title":"Story %d","score":100}`, item.ItemID, item.ItemID)
			return nil
		}},
		extract: &stubHandler{name: "extract", execute: func(_ context.Context, item *queue.Item, _ int) error {
			item.ArticleText = fmt.Sprintf("Article text for story %d.", item.ItemID)
			return nil
		}},
		script: &stubHandler{name: "script", execute: func(_ context.Context, item *queue.Item, _ int) error {
			item.ScriptText = fmt.Sprintf("Segment script for story %d.", item.ItemID)
			return nil
		}},
		audio: &stubHandler{name: "audio", execute: func(_ context.Context, item *queue.Item, _ int) error {
			item.AudioPath = fmt.Sprintf("/audio/%s/%d.mp3", item.BatchID, item.ItemID)
			return nil
		}},
		publish: &stubHandler{name: "publish", execute: func(_ context.Context, item *queue.Item, _ int) error {
			item.EpisodeURL = fmt.Sprintf("https://share.example/%d", item.ItemID)
			return nil
		}},
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingNotifier) count(event notifications.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.events {
		if e == event {
			total++
		}
	}
	return total
}

func (r *recordingNotifier) lastPayload(event notifications.Event) (notifications.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i] == event {
			return r.payloads[i], true
		}
	}
	return nil, false
}

type stubSource struct {
	mu    sync.Mutex
	ids   []int64
	err   error
	calls int
}

func (s *stubSource) TopStories(_ context.Context, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.ids) {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubFeed struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *stubFeed) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *stubFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestManager wires a manager against a temp store with instant retry
// sleeps and centered jitter so tests stay fast and deterministic.
func newTestManager(t *testing.T, cfg *config.Config, stubs stageStubs, opts ...ManagerOption) (*Manager, *queue.Store, *recordingNotifier) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	base := []ManagerOption{
		WithNotifier(notifier),
		WithExecutorOptions(
			stageexec.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
			stageexec.WithJitter(func() float64 { return 0.5 }),
		),
	}
	mgr := NewManager(cfg, store, logging.NewNop(), append(base, opts...)...)
	mgr.ConfigureStages(stubs.set())
	return mgr, store, notifier
}

func itemByKey(t *testing.T, store *queue.Store, batchID string, itemID int64) *queue.Item {
	t.Helper()
	item, err := store.GetByKey(context.Background(), batchID, itemID)
	if err != nil {
		t.Fatalf("GetByKey(%s, %d) returned error: %v", batchID, itemID, err)
	}
	if item == nil {
		t.Fatalf("item %s/%d not found", batchID, itemID)
	}
	return item
}
