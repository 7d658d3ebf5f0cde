package match

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

// WinRateFactors is the transparent breakdown behind a win-rate estimate.
// Callers rely on it for debugging and display, so it is part of the
// contract, not an implementation detail.
type WinRateFactors struct {
	BaseRate      float64 `json:"baseRate"`
	KeywordFactor int     `json:"keywordFactor"`
	UrgencyFactor int     `json:"urgencyFactor"`
	FormFactor    int     `json:"formFactor"`
	ScoreFactor   int     `json:"scoreFactor"`
}

// WinRateResult is the full output of the estimator.
type WinRateResult struct {
	WinRate   float64        `json:"winRate"`
	Reasoning string         `json:"reasoning"`
	Factors   WinRateFactors `json:"factors"`
}

// EstimateWinRate derives a bounded [0,100] probability-like score from an
// opportunity, a profile and a precomputed match score, together with a
// deterministic human-readable rationale. Identical inputs always produce
// byte-identical output.
func EstimateWinRate(opp models.Opportunity, profile models.Profile, matchScore float64, now time.Time) WinRateResult {
	baseRate := math.Min(100, matchScore/200*100)

	// The estimator looks at title+description+summary only; agency and
	// department do not influence interest matching here.
	searchText := strings.ToLower(strings.Join([]string{opp.Title, opp.Description, opp.Summary}, " "))

	mainMatches := countContained(searchText, profile.InterestsMain)
	subMatches := countContained(searchText, profile.InterestsSub)

	keywordFactor := 0
	if mainMatches > 0 {
		keywordFactor += 15
	}
	if subMatches > 0 {
		keywordFactor += 10
	}

	bucket := BucketOf(opp.EffectiveDeadline(), now)
	var urgencyFactor int
	switch bucket {
	case BucketUrgent:
		urgencyFactor = 5
	case BucketSoon:
		urgencyFactor = 3
	default:
		urgencyFactor = 2
	}

	formFactor := -5
	if opp.HasApplicationForm() {
		formFactor = 10
	}

	var scoreFactor int
	switch {
	case matchScore >= 50:
		scoreFactor = 15
	case matchScore >= 20:
		scoreFactor = 10
	case matchScore > 0:
		scoreFactor = 5
	default:
		scoreFactor = -10
	}

	winRate := baseRate + float64(keywordFactor+urgencyFactor+formFactor+scoreFactor)
	winRate = math.Max(0, math.Min(100, winRate))

	return WinRateResult{
		WinRate:   roundTenth(winRate),
		Reasoning: buildReasoning(mainMatches, subMatches, bucket, opp.HasApplicationForm(), matchScore, winRate),
		Factors: WinRateFactors{
			BaseRate:      roundTenth(baseRate),
			KeywordFactor: keywordFactor,
			UrgencyFactor: urgencyFactor,
			FormFactor:    formFactor,
			ScoreFactor:   scoreFactor,
		},
	}
}

func countContained(searchText string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(searchText, strings.ToLower(kw)) {
			count++
		}
	}
	return count
}

func buildReasoning(mainMatches, subMatches int, bucket Bucket, hasForm bool, matchScore, winRate float64) string {
	var parts []string
	if mainMatches > 0 {
		parts = append(parts, fmt.Sprintf("Matches %d main interest(s)", mainMatches))
	}
	if subMatches > 0 {
		parts = append(parts, fmt.Sprintf("Matches %d sub-interest(s)", subMatches))
	}

	switch bucket {
	case BucketUrgent:
		parts = append(parts, "Urgent deadline (within 30 days)")
	case BucketSoon:
		parts = append(parts, "Approaching deadline (within 92 days)")
	default:
		parts = append(parts, "Ongoing opportunity")
	}

	if hasForm {
		parts = append(parts, "Direct application form available")
	} else {
		parts = append(parts, "Application form not directly available")
	}

	switch {
	case matchScore >= 50:
		parts = append(parts, "Strong keyword match")
	case matchScore >= 20:
		parts = append(parts, "Moderate keyword match")
	case matchScore > 0:
		parts = append(parts, "Weak keyword match")
	default:
		parts = append(parts, "No keyword matches found")
	}

	reasoning := "Win rate calculated based on: " + strings.Join(parts, "; ") + "."

	switch {
	case winRate >= 70:
		reasoning += " High probability of success - strong match."
	case winRate >= 50:
		reasoning += " Moderate probability of success - good match."
	case winRate >= 30:
		reasoning += " Lower probability - weak match."
	default:
		reasoning += " Low probability - poor match."
	}

	return reasoning
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
