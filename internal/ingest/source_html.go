package ingest

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// HTMLListingSource scrapes a configured listing page into documents. One
// listing row becomes one document; the row's link doubles as the id.
type HTMLListingSource struct {
	cfg FeedConfig

	// pdfFetcher backfills deadlines from linked PDFs when the listing
	// itself carries none. Nil disables the backfill.
	pdfFetcher Fetcher
}

func NewHTMLListingSource(cfg FeedConfig, pdfFetcher Fetcher) *HTMLListingSource {
	if !cfg.PDFDeadlines {
		pdfFetcher = nil
	}
	return &HTMLListingSource{cfg: cfg, pdfFetcher: pdfFetcher}
}

func (s *HTMLListingSource) ID() string         { return s.cfg.ID }
func (s *HTMLListingSource) Collection() string { return s.cfg.Collection }

func (s *HTMLListingSource) buildCollector(host string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(fetchUserAgent),
		colly.AllowedDomains(host),
		colly.MaxBodySize(10*1024*1024),
		colly.DetectCharset(),
	)

	delay := time.Second
	if s.cfg.Fetch.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / s.cfg.Fetch.RateLimitRPS)
	}
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})

	timeout := time.Duration(s.cfg.Fetch.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return c
}

// FetchDocuments visits every seed URL and extracts one document per
// matching container element. A failing seed is logged and skipped.
func (s *HTMLListingSource) FetchDocuments(ctx context.Context) ([]Document, error) {
	sel := s.cfg.Selectors
	if sel.Container == "" {
		return nil, fmt.Errorf("feed %s: container selector is required", s.cfg.ID)
	}

	var docs []Document
	seen := make(map[string]bool)

	for _, seed := range s.cfg.Seeds {
		u, err := url.Parse(seed)
		if err != nil {
			log.Printf("[%s] invalid seed url %q: %v", s.cfg.ID, seed, err)
			continue
		}

		c := s.buildCollector(u.Hostname())
		c.OnHTML(sel.Container, func(e *colly.HTMLElement) {
			doc, ok := s.extractItem(e)
			if !ok {
				return
			}
			id := doc["id"].(string)
			if seen[id] {
				return
			}
			seen[id] = true
			docs = append(docs, doc)
		})

		var visitErr error
		c.OnError(func(r *colly.Response, err error) {
			visitErr = err
		})

		if err := c.Visit(seed); err != nil {
			log.Printf("[%s] visit %s failed: %v", s.cfg.ID, seed, err)
			continue
		}
		c.Wait()
		if visitErr != nil {
			log.Printf("[%s] scraping %s failed: %v", s.cfg.ID, seed, visitErr)
		}
	}

	if s.pdfFetcher != nil {
		s.backfillPDFDeadlines(ctx, docs)
	}

	return docs, nil
}

func (s *HTMLListingSource) extractItem(e *colly.HTMLElement) (Document, bool) {
	sel := s.cfg.Selectors

	title := CleanText(e.ChildText(sel.Title))
	if title == "" {
		title = CleanText(e.Text)
	}

	link := e.ChildAttr(sel.Link, "href")
	if link != "" && !strings.HasPrefix(link, "http") {
		link = e.Request.AbsoluteURL(link)
	}
	if title == "" || link == "" {
		return nil, false
	}

	doc := Document{
		"id":    link,
		"title": title,
		"url":   link,
	}

	if sel.Summary != "" {
		// Summaries come from arbitrary listing markup: sanitize the inner
		// HTML before flattening so script and style payloads never reach
		// the stored document.
		summary := ""
		if inner, err := e.DOM.Find(sel.Summary).Html(); err == nil {
			summary = HTMLToText(SanitizeHTML(inner))
		} else {
			summary = CleanText(e.ChildText(sel.Summary))
		}
		if summary != "" {
			doc["summary"] = summary
		}
	}
	if sel.Date != "" {
		raw := e.ChildText(sel.Date)
		if t, ok := ParseDeadline(raw); ok {
			doc["deadline"] = t.Format(time.RFC3339)
		} else if clean := CleanText(raw); clean != "" {
			doc["deadlineRaw"] = clean
		}
	}

	return doc, true
}

// backfillPDFDeadlines fills in deadlines for documents whose link points
// at a PDF and that have no parsed deadline yet.
func (s *HTMLListingSource) backfillPDFDeadlines(ctx context.Context, docs []Document) {
	for _, doc := range docs {
		if _, ok := doc["deadline"]; ok {
			continue
		}
		link, _ := doc["url"].(string)
		if !strings.HasSuffix(strings.ToLower(link), ".pdf") {
			continue
		}

		deadline, err := DeadlineFromPDF(ctx, s.pdfFetcher, link)
		if err != nil {
			log.Printf("[%s] pdf deadline extraction for %s failed: %v", s.cfg.ID, link, err)
			continue
		}
		if deadline != nil {
			doc["deadline"] = deadline.Format(time.RFC3339)
		}
	}
}
