package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListOpportunities returns every document in one source collection, in
// insertion order. Documents are schemaless JSONB; fields the model does not
// know about survive in Extra.
func (s *Store) ListOpportunities(ctx context.Context, collection string) ([]models.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT doc_id, doc FROM opportunities WHERE collection = $1 ORDER BY created_at, doc_id",
		collection)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		var docID string
		var doc map[string]interface{}
		if err := rows.Scan(&docID, &doc); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		opp, err := models.DecodeOpportunity(withID(doc, docID))
		if err != nil {
			return nil, fmt.Errorf("decoding document %s/%s: %w", collection, docID, err)
		}
		if opp.Collection == "" {
			opp.Collection = collection
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return opps, nil
}

// withID makes the row key authoritative when the document carries no id of
// its own. The input map is not modified.
func withID(doc map[string]interface{}, docID string) map[string]interface{} {
	if id, ok := doc["id"].(string); ok && id != "" {
		return doc
	}
	merged := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		merged[k] = v
	}
	merged["id"] = docID
	return merged
}

// GetExcludedIDs returns the union of the user's applied and saved
// opportunity ids.
func (s *Store) GetExcludedIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT opportunity_id FROM applied_opportunities WHERE user_id = $1
		UNION
		SELECT opportunity_id FROM saved_opportunities WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("exclusion query failed: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		excluded[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return excluded, nil
}

// UpsertOpportunity inserts or replaces one document in a collection.
func (s *Store) UpsertOpportunity(ctx context.Context, collection, docID string, doc map[string]interface{}) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (collection, doc_id, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, doc_id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, collection, docID, doc)
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", collection, docID, err)
	}
	return nil
}

// MarkApplied records that a user has applied to an opportunity. Idempotent.
func (s *Store) MarkApplied(ctx context.Context, userID, opportunityID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO applied_opportunities (user_id, opportunity_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, opportunityID)
	if err != nil {
		return fmt.Errorf("marking applied: %w", err)
	}
	return nil
}

// SaveOpportunity records a user bookmark. Idempotent.
func (s *Store) SaveOpportunity(ctx context.Context, userID, opportunityID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saved_opportunities (user_id, opportunity_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, opportunityID)
	if err != nil {
		return fmt.Errorf("saving opportunity: %w", err)
	}
	return nil
}

// SyncRun is one feed synchronization attempt for a single source.
type SyncRun struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Collection string     `json:"collection"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Fetched    int        `json:"fetched"`
	Upserted   int        `json:"upserted"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// StartSyncRun opens a run record and returns its id.
func (s *Store) StartSyncRun(ctx context.Context, source, collection string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sync_runs (id, source, collection) VALUES ($1, $2, $3)",
		id, source, collection)
	if err != nil {
		return "", fmt.Errorf("starting sync run: %w", err)
	}
	return id, nil
}

// FinishSyncRun closes a run record with its counts and final status.
func (s *Store) FinishSyncRun(ctx context.Context, runID string, fetched, upserted int, runErr error) error {
	status := "ok"
	errMsg := ""
	if runErr != nil {
		status = "failed"
		errMsg = runErr.Error()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_runs
		SET finished_at = NOW(), fetched = $2, upserted = $3, status = $4, error = NULLIF($5, '')
		WHERE id = $1
	`, runID, fetched, upserted, status, errMsg)
	if err != nil {
		return fmt.Errorf("finishing sync run %s: %w", runID, err)
	}
	return nil
}

// RecentSyncRuns returns the latest runs, newest first.
func (s *Store) RecentSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, collection, started_at, finished_at, fetched, upserted, status, COALESCE(error, '')
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.Source, &r.Collection, &r.StartedAt, &r.FinishedAt,
			&r.Fetched, &r.Upserted, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CollectionStats counts documents per source collection.
func (s *Store) CollectionStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT collection, COUNT(*) FROM opportunities GROUP BY collection ORDER BY collection")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var collection string
		var count int
		if err := rows.Scan(&collection, &count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		stats[collection] = count
	}
	return stats, rows.Err()
}
