package ingest

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/The-culture-connection/rfpueen/internal/appform"
	"github.com/The-culture-connection/rfpueen/internal/models"
)

// SyncResult summarizes one feed's synchronization.
type SyncResult struct {
	Feed       string `json:"feed"`
	Collection string `json:"collection"`
	RunID      string `json:"runId"`
	Fetched    int    `json:"fetched"`
	Upserted   int    `json:"upserted"`
	Err        error  `json:"-"`
}

// FormFinder locates an application form for a synced opportunity.
type FormFinder interface {
	Find(ctx context.Context, opp models.Opportunity) appform.Result
}

// Syncer drives feed synchronization into the document store.
type Syncer struct {
	store    DocStore
	registry *Registry
	fetcher  Fetcher
	finder   FormFinder
}

func NewSyncer(store DocStore, registry *Registry) *Syncer {
	return &Syncer{
		store:    store,
		registry: registry,
		fetcher:  NewRateLimitedFetcher(FetchConfig{}),
	}
}

// SetFormFinder enables applicationUrl backfill for documents that carry
// no direct apply field. Off by default since it crawls per document.
func (s *Syncer) SetFormFinder(f FormFinder) {
	s.finder = f
}

// PageFetcher adapts the ingest Fetcher to the appform finder's needs.
func (s *Syncer) PageFetcher() appform.PageFetcher {
	return pageFetcherAdapter{f: s.fetcher}
}

type pageFetcherAdapter struct {
	f Fetcher
}

func (a pageFetcherAdapter) FetchPage(ctx context.Context, url string) (io.ReadCloser, error) {
	doc, err := a.f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return doc.Body, nil
}

// buildSource constructs the strategy implementation for one feed.
func (s *Syncer) buildSource(cfg FeedConfig) (Source, error) {
	switch cfg.Strategy {
	case "api_grants_gov":
		return NewGrantsGovSource(cfg), nil
	case "html_listing":
		return NewHTMLListingSource(cfg, s.fetcher), nil
	default:
		return nil, fmt.Errorf("feed %s: unknown strategy %q", cfg.ID, cfg.Strategy)
	}
}

// SyncFeed synchronizes a single feed by id.
func (s *Syncer) SyncFeed(ctx context.Context, feedID string) (*SyncResult, error) {
	cfg, err := s.registry.Feed(feedID)
	if err != nil {
		return nil, err
	}
	result := s.syncOne(ctx, cfg)
	return &result, result.Err
}

// SyncAll synchronizes every registered feed. One failing feed does not
// stop the others; its error is carried in the result.
func (s *Syncer) SyncAll(ctx context.Context) []SyncResult {
	results := make([]SyncResult, 0, len(s.registry.Feeds))
	for _, cfg := range s.registry.Feeds {
		if ctx.Err() != nil {
			break
		}
		result := s.syncOne(ctx, cfg)
		if result.Err != nil {
			log.Printf("[sync] feed %s failed: %v", cfg.ID, result.Err)
		}
		results = append(results, result)
	}
	return results
}

func (s *Syncer) syncOne(ctx context.Context, cfg FeedConfig) SyncResult {
	result := SyncResult{Feed: cfg.ID, Collection: cfg.Collection}

	source, err := s.buildSource(cfg)
	if err != nil {
		result.Err = err
		return result
	}

	runID, err := s.store.StartSyncRun(ctx, cfg.ID, cfg.Collection)
	if err != nil {
		result.Err = fmt.Errorf("starting run: %w", err)
		return result
	}
	result.RunID = runID

	docs, fetchErr := source.FetchDocuments(ctx)
	result.Fetched = len(docs)

	if s.finder != nil {
		s.backfillApplicationURLs(ctx, docs)
	}

	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			continue
		}
		if err := s.store.UpsertOpportunity(ctx, cfg.Collection, id, doc); err != nil {
			log.Printf("[sync] upserting %s/%s failed: %v", cfg.Collection, id, err)
			continue
		}
		result.Upserted++
	}

	result.Err = fetchErr
	if err := s.store.FinishSyncRun(ctx, runID, result.Fetched, result.Upserted, fetchErr); err != nil {
		log.Printf("[sync] closing run %s failed: %v", runID, err)
	}

	return result
}

// backfillApplicationURLs fills applicationUrl on documents without a
// direct apply field, so the downstream form factor has something to see.
func (s *Syncer) backfillApplicationURLs(ctx context.Context, docs []Document) {
	for _, doc := range docs {
		if hasApplyField(doc) {
			continue
		}
		opp, err := models.DecodeOpportunity(doc)
		if err != nil || opp.URL == "" {
			continue
		}
		if r := s.finder.Find(ctx, opp); r.Found {
			doc["applicationUrl"] = r.URL
		}
	}
}

func hasApplyField(doc Document) bool {
	for _, key := range []string{"applicationUrl", "applyUrl", "formUrl"} {
		if v, ok := doc[key].(string); ok && v != "" {
			return true
		}
	}
	return false
}
