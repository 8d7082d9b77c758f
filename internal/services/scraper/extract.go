package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelector matches elements that never carry article prose.
const boilerplateSelector = "script, style, nav, header, footer, aside, form"

// contentSelectors is tried in order; the first match wins. The list walks
// from semantic article markup down to common CMS class names.
var contentSelectors = []string{
	"article",
	"[role=\"main\"]",
	".content",
	".post-content",
	".entry-content",
	".article-content",
	"main",
	".main",
}

// extractArticle pulls the readable text out of a parsed page.
func extractArticle(doc *goquery.Document) Article {
	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(boilerplateSelector).Remove()

	content := doc.Find("body")
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector).First(); selection.Length() > 0 {
			content = selection
			break
		}
	}

	text := cleanText(content.Text())
	return Article{
		Title:     title,
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}
}

// cleanText collapses intra-line whitespace and drops blank lines.
func cleanText(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
