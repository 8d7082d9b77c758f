package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hackercast/internal/logging"
)

func writeAgedFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("log line\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("age %s: %v", path, err)
	}
}

func TestCleanupOldLogsPrunesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "hackercast-20260101T060000.000Z.log")
	fresh := filepath.Join(dir, "hackercast-20260820T060000.000Z.log")
	current := filepath.Join(dir, "hackercast-20260825T060000.000Z.log")
	unrelated := filepath.Join(dir, "notes.txt")

	writeAgedFile(t, old, 90*24*time.Hour)
	writeAgedFile(t, fresh, 24*time.Hour)
	writeAgedFile(t, current, 90*24*time.Hour)
	writeAgedFile(t, unrelated, 90*24*time.Hour)

	logging.CleanupOldLogs(logging.NewNop(), 30,
		logging.RetentionTarget{Dir: dir, Pattern: "hackercast-*.log", Exclude: []string{current}},
	)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned, stat err = %v", old, err)
	}
	for _, path := range []string{fresh, current, unrelated} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to survive pruning: %v", path, err)
		}
	}
}

func TestCleanupOldLogsDisabledByZeroRetention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "hackercast-20250101T060000.000Z.log")
	writeAgedFile(t, old, 400*24*time.Hour)

	logging.CleanupOldLogs(logging.NewNop(), 0,
		logging.RetentionTarget{Dir: dir, Pattern: "hackercast-*.log"},
	)

	if _, err := os.Stat(old); err != nil {
		t.Fatalf("expected file to remain with retention disabled: %v", err)
	}
}
