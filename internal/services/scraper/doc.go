// Package scraper downloads story pages and extracts their readable text.
//
// This package is used by:
//   - Extract stage: turn a story's linked page into plain article text
//
// # Extraction Logic
//
// Pages are parsed with goquery. Script, style, and navigation chrome are
// stripped, then a prioritized selector list locates the article body,
// falling back to the whole page body. Extracted text below the configured
// word minimum is rejected.
//
// # Failure Classification
//
// Unreachable or rate-limited hosts fail transiently. Wrong content types,
// oversized bodies, missing pages, and too-short articles fail permanently:
// refetching the same page cannot change the outcome.
package scraper
