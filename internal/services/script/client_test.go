package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"hackercast/internal/services"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected missing API key to fail")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestBuildSegmentInputIncludesStoryAndArticle(t *testing.T) {
	input := buildSegmentInput(SegmentRequest{
		Title:       "A New Sorting Algorithm",
		URL:         "https://example.com/sorting",
		ArticleText: "Researchers describe a comparison sort that adapts to nearly ordered input.",
	})
	if !strings.HasPrefix(input, "Story title: A New Sorting Algorithm\n") {
		t.Fatalf("expected title first, got %q", input)
	}
	if !strings.Contains(input, "Story link: https://example.com/sorting") {
		t.Fatalf("expected story link, got %q", input)
	}
	if !strings.Contains(input, "nearly ordered input") {
		t.Fatalf("expected article text, got %q", input)
	}
}

func TestBuildSegmentInputOmitsEmptyLink(t *testing.T) {
	input := buildSegmentInput(SegmentRequest{Title: "Ask HN", ArticleText: "Discussion text."})
	if strings.Contains(input, "Story link:") {
		t.Fatalf("expected no link line, got %q", input)
	}
}

func TestResponseTextUsesFirstCandidateWithText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: ""}}}},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "Today on the show, "}, {Text: "a new sorting algorithm."}}}},
		},
	}
	got := responseText(resp)
	if got != "Today on the show, a new sorting algorithm." {
		t.Fatalf("unexpected response text %q", got)
	}
}

func TestResponseTextHandlesEmptyResponse(t *testing.T) {
	if responseText(nil) != "" {
		t.Fatal("expected empty text for nil response")
	}
	if responseText(&genai.GenerateContentResponse{}) != "" {
		t.Fatal("expected empty text for response without candidates")
	}
}
