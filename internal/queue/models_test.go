package queue_test

import (
	"testing"
	"time"

	"hackercast/internal/queue"
)

func TestParseStage(t *testing.T) {
	cases := []struct {
		input string
		want  queue.Stage
		ok    bool
	}{
		{"pending", queue.StagePending, true},
		{"Content_Fetched", queue.StageContentFetched, true},
		{"  published  ", queue.StagePublished, true},
		{"dead_lettered", queue.StageDeadLettered, true},
		{"", "", false},
		{"ripping", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStage(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseStage(%q): expected ok=%v, got %v", tc.input, tc.ok, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStage(%q): expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestStageOrderingIsForward(t *testing.T) {
	stages := queue.AllStages()
	for i := 1; i < len(stages); i++ {
		if stages[i-1].Index() >= stages[i].Index() {
			t.Fatalf("expected strictly increasing order, got %s >= %s", stages[i-1], stages[i])
		}
	}
	if queue.StagePending.Index() != 0 {
		t.Fatalf("expected pending first, got index %d", queue.StagePending.Index())
	}
	if queue.Stage("bogus").Index() <= queue.StageDeadLettered.Index() {
		t.Fatal("expected unknown stages to sort last")
	}
}

func TestPrevStage(t *testing.T) {
	prev, ok := queue.PrevStage(queue.StageContentExtracted)
	if !ok || prev != queue.StageContentFetched {
		t.Fatalf("expected content_fetched, got %s ok=%v", prev, ok)
	}
	if _, ok := queue.PrevStage(queue.StagePending); ok {
		t.Fatal("expected no stage before pending")
	}
	if _, ok := queue.PrevStage(queue.Stage("bogus")); ok {
		t.Fatal("expected no stage before an unknown stage")
	}
}

func TestStageTerminality(t *testing.T) {
	for _, stage := range queue.AllStages() {
		terminal := stage == queue.StagePublished || stage == queue.StageDeadLettered
		if stage.IsTerminal() != terminal {
			t.Fatalf("stage %s: expected terminal=%v", stage, terminal)
		}
	}
}

func TestAdvanceToResetsAttemptState(t *testing.T) {
	item := queue.Item{
		Stage:        queue.StagePending,
		AttemptCount: 2,
		LastError:    "fetch: story: connection reset",
		ErrorKind:    "transient_error",
	}
	item.AdvanceTo(queue.StageContentFetched)
	if item.Stage != queue.StageContentFetched {
		t.Fatalf("expected content_fetched, got %s", item.Stage)
	}
	if item.AttemptCount != 0 || item.LastError != "" || item.ErrorKind != "" {
		t.Fatalf("expected attempt state cleared, got %#v", item)
	}
	if item.Terminal {
		t.Fatal("expected non-terminal stage")
	}

	item.AdvanceTo(queue.StagePublished)
	if !item.Terminal {
		t.Fatal("expected published item to be terminal")
	}
	if !item.Stage.IsTerminal() || item.InFlight() {
		t.Fatalf("expected terminal item, got %#v", item)
	}
}

func TestSetDeadLetteredRecordsCause(t *testing.T) {
	now := time.Now().UTC()
	item := queue.Item{Stage: queue.StageContentExtracted, AttemptCount: 3, LastHeartbeat: &now}
	item.SetDeadLettered("timeout", "script: generate: deadline exceeded")
	if item.Stage != queue.StageDeadLettered || !item.Terminal {
		t.Fatalf("expected dead-lettered terminal item, got %#v", item)
	}
	if item.ErrorKind != "timeout" || item.LastError == "" {
		t.Fatalf("expected cause recorded, got %#v", item)
	}
	if item.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared")
	}
}
