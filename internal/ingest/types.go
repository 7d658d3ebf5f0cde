package ingest

import (
	"context"
	"io"
	"time"
)

// FetchedDocument is the raw result of one fetch.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Document is one opportunity as stored: a schemaless map keyed by the
// camelCase field names the matching engine understands. Source-specific
// fields ride along untouched.
type Document map[string]interface{}

// DocStore is the slice of the database layer the sync pipeline needs.
type DocStore interface {
	UpsertOpportunity(ctx context.Context, collection, docID string, doc map[string]interface{}) error
	StartSyncRun(ctx context.Context, source, collection string) (string, error)
	FinishSyncRun(ctx context.Context, runID string, fetched, upserted int, runErr error) error
}

// Source produces documents for one feed.
type Source interface {
	ID() string
	Collection() string
	FetchDocuments(ctx context.Context) ([]Document, error)
}
