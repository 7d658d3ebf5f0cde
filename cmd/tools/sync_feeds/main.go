package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/The-culture-connection/rfpueen/internal/appform"
	"github.com/The-culture-connection/rfpueen/internal/db"
	"github.com/The-culture-connection/rfpueen/internal/ingest"
)

func main() {
	feedID := flag.String("feed", "", "sync a single feed by id (default: all)")
	findForms := flag.Bool("find-forms", false, "crawl for application forms on documents missing one")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	registry, err := ingest.LoadRegistry(os.Getenv("FEEDS_CONFIG"))
	if err != nil {
		log.Fatalf("Loading feed registry: %v", err)
	}

	store := db.NewStore(pool)
	syncer := ingest.NewSyncer(store, registry)
	if *findForms {
		syncer.SetFormFinder(appform.NewFinder(syncer.PageFetcher()))
	}

	var results []ingest.SyncResult
	if *feedID != "" {
		result, err := syncer.SyncFeed(ctx, *feedID)
		if err != nil {
			log.Printf("Feed %s failed: %v", *feedID, err)
		}
		if result != nil {
			results = append(results, *result)
		}
	} else {
		results = syncer.SyncAll(ctx)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Feed", "Collection", "Fetched", "Upserted", "Status"})

	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Feed, r.Collection, r.Fetched, r.Upserted, status})
	}
	t.Render()
}
