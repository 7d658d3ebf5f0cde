package ingest

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace into single spaces and trims.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

var sanitizePolicy = bluemonday.UGCPolicy()

// SanitizeHTML strips dangerous markup from source-provided HTML so it can
// be stored in a document and served back untouched.
func SanitizeHTML(html string) string {
	return sanitizePolicy.Sanitize(html)
}

// HTMLToText converts an HTML fragment to plain text, dropping script and
// style content.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return CleanText(html)
	}
	doc.Find("script, style, noscript").Remove()
	return CleanText(doc.Text())
}

// deadlineFormats covers the date shapes seen across the feeds. Order
// matters: more specific layouts come first.
var deadlineFormats = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2 2006",
}

// ParseDeadline parses a raw date string into UTC. Date-only values are
// normalized to end of day so a deadline stays valid through its final day.
func ParseDeadline(raw string) (*time.Time, bool) {
	raw = CleanText(raw)
	if raw == "" {
		return nil, false
	}

	for _, layout := range deadlineFormats {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if layout != time.RFC3339 {
			t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
		}
		utc := t.UTC()
		return &utc, true
	}
	return nil, false
}
