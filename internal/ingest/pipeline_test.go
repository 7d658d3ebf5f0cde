package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/The-culture-connection/rfpueen/internal/appform"
	"github.com/The-culture-connection/rfpueen/internal/models"
)

type fakeDocStore struct {
	upserts  map[string]map[string]interface{} // collection/doc_id -> doc
	started  []string
	finished map[string]string // runID -> status
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		upserts:  make(map[string]map[string]interface{}),
		finished: make(map[string]string),
	}
}

func (f *fakeDocStore) UpsertOpportunity(ctx context.Context, collection, docID string, doc map[string]interface{}) error {
	f.upserts[collection+"/"+docID] = doc
	return nil
}

func (f *fakeDocStore) StartSyncRun(ctx context.Context, source, collection string) (string, error) {
	runID := fmt.Sprintf("run-%d", len(f.started)+1)
	f.started = append(f.started, source)
	return runID, nil
}

func (f *fakeDocStore) FinishSyncRun(ctx context.Context, runID string, fetched, upserted int, runErr error) error {
	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	f.finished[runID] = status
	return nil
}

func TestSyncAll(t *testing.T) {
	srv := grantsGovTestServer(t, []grantsGovRecord{
		{ID: "1001", Title: "STEM Outreach Grant", Agency: "NSF", CloseDate: "07/01/2026"},
		{ID: "1002", Title: "Rural Broadband Grant", Agency: "USDA"},
	})
	defer srv.Close()

	registry := &Registry{Feeds: []FeedConfig{
		{
			ID:         "grants_gov",
			Collection: "grants.gov",
			Strategy:   "api_grants_gov",
			BaseURL:    srv.URL,
			Rows:       100,
			MaxPages:   1,
		},
		{
			ID:         "broken",
			Collection: "bid",
			Strategy:   "does_not_exist",
		},
	}}

	store := newFakeDocStore()
	syncer := NewSyncer(store, registry)

	results := syncer.SyncAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected a result per feed, got %d", len(results))
	}

	first := results[0]
	if first.Err != nil {
		t.Fatalf("grants_gov feed failed: %v", first.Err)
	}
	if first.Fetched != 2 || first.Upserted != 2 {
		t.Errorf("expected 2 fetched/upserted, got %+v", first)
	}
	if store.finished[first.RunID] != "ok" {
		t.Errorf("expected run closed ok, got %q", store.finished[first.RunID])
	}

	if _, ok := store.upserts["grants.gov/1001"]; !ok {
		t.Error("document 1001 not upserted into grants.gov")
	}

	// Unknown strategy fails its own feed only.
	if results[1].Err == nil {
		t.Error("expected the broken feed to report an error")
	}
}

func TestSyncFeedUnknown(t *testing.T) {
	syncer := NewSyncer(newFakeDocStore(), &Registry{})
	if _, err := syncer.SyncFeed(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown feed")
	}
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(reg.Feeds) == 0 {
		t.Fatal("expected embedded feeds")
	}

	feed, err := reg.Feed("grants_gov")
	if err != nil {
		t.Fatalf("grants_gov feed missing: %v", err)
	}
	if feed.Collection != "grants.gov" {
		t.Errorf("expected grants.gov collection, got %q", feed.Collection)
	}
	if feed.Strategy != "api_grants_gov" {
		t.Errorf("unexpected strategy %q", feed.Strategy)
	}

	if _, err := reg.Feed("missing"); err == nil {
		t.Error("expected error for unknown feed id")
	}
}

type fakeFormFinder struct {
	url   string
	calls int
}

func (f *fakeFormFinder) Find(ctx context.Context, opp models.Opportunity) appform.Result {
	f.calls++
	if f.url == "" {
		return appform.Result{Found: false}
	}
	return appform.Result{URL: f.url, Confidence: 0.8, Found: true}
}

func TestSyncBackfillsApplicationURL(t *testing.T) {
	srv := grantsGovTestServer(t, []grantsGovRecord{
		{ID: "2001", Title: "Community Grant", Agency: "HUD"},
	})
	defer srv.Close()

	registry := &Registry{Feeds: []FeedConfig{{
		ID:         "grants_gov",
		Collection: "grants.gov",
		Strategy:   "api_grants_gov",
		BaseURL:    srv.URL,
		Rows:       100,
		MaxPages:   1,
	}}}

	store := newFakeDocStore()
	syncer := NewSyncer(store, registry)
	finder := &fakeFormFinder{url: "https://example.org/apply"}
	syncer.SetFormFinder(finder)

	results := syncer.SyncAll(context.Background())
	if results[0].Err != nil {
		t.Fatalf("sync failed: %v", results[0].Err)
	}
	if finder.calls != 1 {
		t.Errorf("expected one finder call, got %d", finder.calls)
	}

	doc := store.upserts["grants.gov/2001"]
	if doc == nil {
		t.Fatal("document not upserted")
	}
	if doc["applicationUrl"] != "https://example.org/apply" {
		t.Errorf("applicationUrl not backfilled: %v", doc["applicationUrl"])
	}
}

func TestHTMLListingSourceRequiresContainer(t *testing.T) {
	src := NewHTMLListingSource(FeedConfig{ID: "x", Strategy: "html_listing"}, nil)
	if _, err := src.FetchDocuments(context.Background()); err == nil {
		t.Error("expected error without a container selector")
	}
}

func TestHTMLListingSourceScrape(t *testing.T) {
	page := `<html><body>
		<div class="row"><h3><a href="/rfps/one">Arts Education RFP</a></h3>
			<p class="summary">Funding for <b>arts</b>  education programs.<script>alert("pwn")</script></p>
			<span class="when">June 15, 2026</span></div>
		<div class="row"><h3><a href="/rfps/two">Housing RFP</a></h3>
			<span class="when">rolling</span></div>
		<div class="row"><h3>No link here</h3></div>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	src := NewHTMLListingSource(FeedConfig{
		ID:         "pnd_rfps",
		Collection: "PND_RFPs",
		Strategy:   "html_listing",
		Seeds:      []string{srv.URL + "/rfps"},
		Selectors: SelectorConfig{
			Container: "div.row",
			Link:      "h3 a",
			Title:     "h3 a",
			Summary:   "p.summary",
			Date:      "span.when",
		},
	}, nil)

	docs, err := src.FetchDocuments(context.Background())
	if err != nil {
		t.Fatalf("FetchDocuments failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	first := docs[0]
	if first["title"] != "Arts Education RFP" {
		t.Errorf("unexpected title %v", first["title"])
	}
	if first["url"] != srv.URL+"/rfps/one" {
		t.Errorf("relative link not resolved: %v", first["url"])
	}
	// Markup is flattened and script payloads are sanitized away.
	if first["summary"] != "Funding for arts education programs." {
		t.Errorf("unexpected summary %v", first["summary"])
	}
	if first["deadline"] != "2026-06-15T23:59:59Z" {
		t.Errorf("unexpected deadline %v", first["deadline"])
	}

	second := docs[1]
	if _, ok := second["deadline"]; ok {
		t.Error("unparseable date must not produce a deadline")
	}
	if second["deadlineRaw"] != "rolling" {
		t.Errorf("expected raw date preserved, got %v", second["deadlineRaw"])
	}
}
