package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestExtractArticleFallsBackToBody(t *testing.T) {
	page := `<html><head><title>Plain Page</title></head><body>
<p>First paragraph of a page without any article markup at all.</p>
<p>Second paragraph continues the thought.</p>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}

	article := extractArticle(doc)
	if article.Title != "Plain Page" {
		t.Fatalf("unexpected title %q", article.Title)
	}
	if !strings.Contains(article.Text, "First paragraph") || !strings.Contains(article.Text, "Second paragraph") {
		t.Fatalf("expected body fallback text, got %q", article.Text)
	}
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	raw := "  leading   spaces\n\n\n\nblank   runs\t\tand tabs  \n"
	got := cleanText(raw)
	want := "leading spaces\nblank runs and tabs"
	if got != want {
		t.Fatalf("cleanText = %q, want %q", got, want)
	}
}

func TestExtractArticleCountsWords(t *testing.T) {
	page := `<html><body><article>one two three four five</article></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	if article := extractArticle(doc); article.WordCount != 5 {
		t.Fatalf("expected 5 words, got %d", article.WordCount)
	}
}
