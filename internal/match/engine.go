package match

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

// MaxResults caps the ranked list returned by FindMatches. The total in the
// response still reflects the full filtered set.
const MaxResults = 50

// ErrInvalidRequest marks caller mistakes (missing required input) that must
// surface as a 4xx at the boundary with no partial result.
var ErrInvalidRequest = errors.New("invalid request")

// OpportunityStore retrieves every opportunity in one source collection.
// Implementations may fail per collection; the engine treats that as a
// degraded, not fatal, condition.
type OpportunityStore interface {
	ListOpportunities(ctx context.Context, collection string) ([]models.Opportunity, error)
}

// ExclusionStore returns the ids a user has already applied to or saved.
type ExclusionStore interface {
	GetExcludedIDs(ctx context.Context, userID string) (map[string]bool, error)
}

// MatchResponse is the engine's answer to one FindMatches request.
type MatchResponse struct {
	Opportunities []models.MatchResult `json:"opportunities"`
	Total         int                  `json:"total"`
}

// Engine orchestrates scoring and ranking over injected collaborators. It
// holds no mutable state between requests, so one Engine may serve
// concurrent callers without coordination.
type Engine struct {
	store       OpportunityStore
	exclusions  ExclusionStore
	collections *CollectionMap
	now         func() time.Time
}

func NewEngine(store OpportunityStore, exclusions ExclusionStore, collections *CollectionMap) *Engine {
	return &Engine{
		store:       store,
		exclusions:  exclusions,
		collections: collections,
		now:         time.Now,
	}
}

// WinRate estimates a single opportunity's win rate against the engine's
// clock. Used by callers that already hold a document and a match score.
func (e *Engine) WinRate(opp models.Opportunity, profile models.Profile, matchScore float64) WinRateResult {
	return EstimateWinRate(opp, profile, matchScore, e.now())
}

// scoredCollection keeps fan-out results ordered by resolved-collection
// position so ranking ties stay deterministic (retrieval order).
type scoredCollection struct {
	results []models.MatchResult
}

// FindMatches resolves the profile's funding types to source collections,
// retrieves and scores every candidate, filters out zero scores and the
// user's applied/saved history, ranks by score descending and returns the
// top MaxResults together with the full filtered count.
//
// Collection retrieval fans out concurrently, one goroutine per collection;
// a failed collection is logged and skipped so partial results survive. A
// failing exclusion store likewise degrades to no exclusion filtering.
func (e *Engine) FindMatches(ctx context.Context, profile models.Profile, userID string) (*MatchResponse, error) {
	if len(profile.FundingTypes) == 0 {
		return nil, ErrInvalidRequest
	}

	collections := e.collections.Resolve(profile.FundingTypes)
	now := e.now()

	// Fan out per collection. Slots are pre-indexed so merged order does
	// not depend on goroutine completion order.
	slots := make([]scoredCollection, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		g.Go(func() error {
			opps, err := e.store.ListOpportunities(gctx, collection)
			if err != nil {
				log.Printf("[match] listing collection %q failed, skipping: %v", collection, err)
				return nil
			}
			for _, opp := range opps {
				score := Score(opp, profile, now)
				if score == 0 {
					continue
				}
				if opp.Collection == "" {
					opp.Collection = collection
				}
				slots[i].results = append(slots[i].results, models.MatchResult{
					Opportunity:   opp,
					Score:         score,
					UrgencyBucket: string(BucketOf(opp.EffectiveDeadline(), now)),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []models.MatchResult
	for _, slot := range slots {
		candidates = append(candidates, slot.results...)
	}

	if userID != "" {
		excluded, err := e.exclusions.GetExcludedIDs(ctx, userID)
		if err != nil {
			log.Printf("[match] exclusion lookup for user %q failed, proceeding unfiltered: %v", userID, err)
		} else if len(excluded) > 0 {
			kept := candidates[:0]
			for _, c := range candidates {
				if !excluded[c.ID] {
					kept = append(kept, c)
				}
			}
			candidates = kept
		}
	}

	// Stable sort keeps retrieval order for equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	// Win rates are computed for the entire filtered set, not just the
	// returned slice.
	for i := range candidates {
		wr := EstimateWinRate(candidates[i].Opportunity, profile, candidates[i].Score, now)
		candidates[i].WinRate = wr.WinRate
		candidates[i].WinRateReasoning = wr.Reasoning
	}

	total := len(candidates)
	if len(candidates) > MaxResults {
		candidates = candidates[:MaxResults]
	}
	if candidates == nil {
		candidates = []models.MatchResult{}
	}

	return &MatchResponse{Opportunities: candidates, Total: total}, nil
}
