package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	rpdf "rsc.io/pdf"
)

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+20\d{2}\b`),
}

// ExtractPDFText pulls the text fragments out of a PDF. The parser panics
// on malformed files, so that is recovered into an error.
func ExtractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// DeadlineCandidatesFromText finds parseable dates in free text, earliest
// first, deduplicated.
func DeadlineCandidatesFromText(text string) []time.Time {
	seen := make(map[string]bool)
	var candidates []time.Time

	for _, expr := range dateSnippetRegexes {
		for _, token := range expr.FindAllString(text, -1) {
			token = strings.TrimSuffix(strings.TrimSpace(token), ",")
			t, ok := ParseDeadline(token)
			if !ok {
				continue
			}
			key := t.Format(time.RFC3339)
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, *t)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	return candidates
}

// DeadlineFromPDF fetches a PDF and returns the earliest future date it
// mentions, or the earliest date at all when none are in the future. Nil
// with no error means the PDF mentioned no parseable dates.
func DeadlineFromPDF(ctx context.Context, fetcher Fetcher, pdfURL string) (*time.Time, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("pdf read failed: %w", err)
	}

	text, err := ExtractPDFText(content)
	if err != nil {
		return nil, fmt.Errorf("pdf text extraction failed: %w", err)
	}

	candidates := DeadlineCandidatesFromText(text)
	if len(candidates) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for _, c := range candidates {
		if c.After(now) {
			future := c
			return &future, nil
		}
	}
	first := candidates[0]
	return &first, nil
}
