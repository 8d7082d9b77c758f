package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hackercast/internal/services"
)

func TestSynthesizeSendsVoiceSettings(t *testing.T) {
	fakeMP3 := []byte("ID3fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Api-Key") != "test-key" {
			t.Fatalf("missing api key header")
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Voice.Name != "en-US-Neural2-D" || req.Voice.LanguageCode != "en-US" {
			t.Fatalf("unexpected voice %+v", req.Voice)
		}
		if req.AudioConfig.AudioEncoding != "MP3" || req.AudioConfig.SpeakingRate != 1.25 {
			t.Fatalf("unexpected audio config %+v", req.AudioConfig)
		}
		if !strings.Contains(req.Input.Text, "daily digest") {
			t.Fatalf("unexpected input text %q", req.Input.Text)
		}
		_ = json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString(fakeMP3),
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL, SpeakingRate: 1.25})
	audio, err := client.Synthesize(context.Background(), "Welcome to the daily digest.")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != string(fakeMP3) {
		t.Fatalf("unexpected audio bytes %q", audio)
	}
}

func TestSynthesizeRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Synthesize(context.Background(), "hello")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})
	_, err := client.Synthesize(context.Background(), "   ")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent marker, got %v", err)
	}
}

func TestSynthesizeClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		marker error
	}{
		{name: "bad key", status: http.StatusForbidden, marker: services.ErrConfiguration},
		{name: "rate limited", status: http.StatusTooManyRequests, marker: services.ErrTransient},
		{name: "server error", status: http.StatusInternalServerError, marker: services.ErrTransient},
		{name: "bad request", status: http.StatusBadRequest, marker: services.ErrPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
			_, err := client.Synthesize(context.Background(), "some text")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected marker %v, got %v", tc.marker, err)
			}
		})
	}
}

func TestSynthesizeConcatenatesChunkAudio(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte{byte('0' + calls)}),
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL})
	// Three sentences, comfortably under one chunk, still one call.
	audio, err := client.Synthesize(context.Background(), "One. Two. Three.")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if calls != 1 || string(audio) != "1" {
		t.Fatalf("expected single chunk, got %d calls and %q", calls, audio)
	}
}

func TestSplitTextPrefersSentenceBoundaries(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one closes."
	chunks := splitText(text, 30)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "First sentence here." {
		t.Fatalf("unexpected first chunk %q", chunks[0])
	}
	for _, chunk := range chunks {
		if len(chunk) > 30 {
			t.Fatalf("chunk exceeds limit: %q", chunk)
		}
	}
}

func TestSplitTextHandlesUnbrokenInput(t *testing.T) {
	text := strings.Repeat("x", 100)
	chunks := splitText(text, 30)
	var total int
	for _, chunk := range chunks {
		if len(chunk) > 30 {
			t.Fatalf("chunk exceeds limit: %d bytes", len(chunk))
		}
		total += len(chunk)
	}
	if total != 100 {
		t.Fatalf("expected all bytes preserved, got %d", total)
	}
}

func TestHealthCheckUsesVoicesEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/voices") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"voices":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test-key", Endpoint: server.URL + "/v1/text:synthesize"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
