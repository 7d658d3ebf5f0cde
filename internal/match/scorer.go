package match

import (
	"regexp"
	"strings"
	"time"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

// Scoring weights. The main-interest boost is substring containment on
// purpose: it is a coarser second pass on top of the whole-word count, and
// the two are intentionally not unified.
const (
	keywordMatchWeight = 10
	mainInterestBoost  = 5
	urgentBoost        = 5
	soonBoost          = 2
)

// Score computes the relevance of one opportunity for one profile. The
// result is always >= 0; an empty merged keyword set scores exactly 0.
func Score(opp models.Opportunity, profile models.Profile, now time.Time) float64 {
	keywords := profile.MergedKeywords()
	if len(keywords) == 0 {
		return 0
	}

	searchText := opp.SearchText()

	keywordMatches := 0
	for _, kw := range keywords {
		keywordMatches += countWholeWord(searchText, kw)
	}
	score := float64(keywordMatches * keywordMatchWeight)

	// Coarse boost: the original (not deduplicated) main-interest list,
	// matched by plain substring containment.
	for _, kw := range profile.InterestsMain {
		if kw == "" {
			continue
		}
		if strings.Contains(searchText, strings.ToLower(kw)) {
			score += mainInterestBoost
		}
	}

	switch BucketOf(opp.EffectiveDeadline(), now) {
	case BucketUrgent:
		score += urgentBoost
	case BucketSoon:
		score += soonBoost
	}

	return score
}

// countWholeWord counts word-boundary occurrences of keyword in text.
// The keyword is quoted so regex metacharacters ("c++", "r&d") match
// literally. Both inputs are expected to be lowercase already.
func countWholeWord(text, keyword string) int {
	if keyword == "" {
		return 0
	}
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}
