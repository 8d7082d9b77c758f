package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hackercast/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "fetch started\nfetch done\nextract started\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "fetch done" || result.Lines[1] != "extract started" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("expected offset to advance to end of file")
	}
}

func TestTailLimitLargerThanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "only line\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only line" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.log")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail missing file: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestTailResumesFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "first\n")

	initial, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("second\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	next, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: initial.Offset})
	if err != nil {
		t.Fatalf("resume tail: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "second" {
		t.Fatalf("unexpected resumed lines: %#v", next.Lines)
	}
	if next.Offset <= initial.Offset {
		t.Fatalf("offset did not advance: %d -> %d", initial.Offset, next.Offset)
	}
}

func TestTailLeavesUnterminatedLineForNextRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "complete\npartial")

	first, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(first.Lines) != 1 || first.Lines[0] != "complete" {
		t.Fatalf("unexpected lines: %#v", first.Lines)
	}
	if first.Offset != int64(len("complete\n")) {
		t.Fatalf("offset = %d, want %d", first.Offset, len("complete\n"))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(" record\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	second, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: first.Offset})
	if err != nil {
		t.Fatalf("resume tail: %v", err)
	}
	if len(second.Lines) != 1 || second.Lines[0] != "partial record" {
		t.Fatalf("unexpected resumed lines: %#v", second.Lines)
	}
}

func TestTailFollowWaitsForNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail: %v", err)
			return
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(initial.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not observe appended line")
	}
}

func TestTailFollowTimesOutEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackercast.log")
	writeLog(t, path, "only\n")

	initial, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	start := time.Now()
	res, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: initial.Offset, Follow: true, Wait: 300 * time.Millisecond})
	if err != nil {
		t.Fatalf("follow tail: %v", err)
	}
	if len(res.Lines) != 0 {
		t.Fatalf("expected no lines, got %#v", res.Lines)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("follow wait ran too long: %v", elapsed)
	}
}
