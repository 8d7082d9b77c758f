package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteEpisodeAudio drops a fake rendered-audio file at path, creating
// parent directories as needed, and returns the byte count written.
// Feed and publish tests only need a file that exists with a stable
// size; the payload stands in for real MP3 bytes.
func WriteEpisodeAudio(t testing.TB, path string, payload string) int64 {
	t.Helper()

	if payload == "" {
		payload = "ID3fake-mp3"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return int64(len(payload))
}
