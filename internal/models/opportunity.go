package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Opportunity is a single funding listing from a source collection. Feeds are
// heterogeneous by design: every field except ID and Collection is optional,
// and fields we do not model are carried through in Extra untouched.
type Opportunity struct {
	ID         string `json:"id" mapstructure:"id"`
	Collection string `json:"collection,omitempty" mapstructure:"collection"`

	Title       string `json:"title,omitempty" mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Summary     string `json:"summary,omitempty" mapstructure:"summary"`
	Agency      string `json:"agency,omitempty" mapstructure:"agency"`
	Department  string `json:"department,omitempty" mapstructure:"department"`

	CloseDate *time.Time `json:"closeDate,omitempty" mapstructure:"closeDate"`
	Deadline  *time.Time `json:"deadline,omitempty" mapstructure:"deadline"`

	URL            string `json:"url,omitempty" mapstructure:"url"`
	ApplicationURL string `json:"applicationUrl,omitempty" mapstructure:"applicationUrl"`
	ApplyURL       string `json:"applyUrl,omitempty" mapstructure:"applyUrl"`
	FormURL        string `json:"formUrl,omitempty" mapstructure:"formUrl"`

	// Extra holds source fields we do not model (award amounts, locations,
	// eligibility blobs, ...) so nothing is lost round-tripping a document.
	Extra map[string]interface{} `json:"-" mapstructure:",remain"`
}

// MarshalJSON inlines Extra alongside the modeled fields so responses
// carry the full source document, not just the fields we model. Modeled
// fields win on a key collision.
func (o Opportunity) MarshalJSON() ([]byte, error) {
	type plain Opportunity
	base, err := json.Marshal(plain(o))
	if err != nil {
		return nil, err
	}
	if len(o.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]interface{}, len(o.Extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range o.Extra {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// EffectiveDeadline returns closeDate when present, otherwise deadline.
// Nil means the opportunity has no deadline at all.
func (o *Opportunity) EffectiveDeadline() *time.Time {
	if o.CloseDate != nil {
		return o.CloseDate
	}
	return o.Deadline
}

// SearchText builds the lowercase haystack used for relevance scoring:
// title, description, summary, agency and department joined by single
// spaces. Missing fields contribute empty strings.
func (o *Opportunity) SearchText() string {
	parts := []string{o.Title, o.Description, o.Summary, o.Agency, o.Department}
	return strings.ToLower(strings.Join(parts, " "))
}

// HasApplicationForm reports whether any direct apply path is recorded.
func (o *Opportunity) HasApplicationForm() bool {
	return o.ApplicationURL != "" || o.ApplyURL != "" || o.FormURL != ""
}

// DecodeOpportunity maps a raw store document onto the typed struct,
// collecting unrecognized fields into Extra. Timestamps may arrive as
// time.Time (native driver decoding) or as RFC 3339 strings.
func DecodeOpportunity(doc map[string]interface{}) (Opportunity, error) {
	var opp Opportunity
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &opp,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return opp, err
	}
	if err := dec.Decode(doc); err != nil {
		return opp, err
	}
	return opp, nil
}

// Profile is a user's stated search intent.
type Profile struct {
	FundingTypes     []string `json:"fundingTypes"`
	InterestsMain    []string `json:"interestsMain,omitempty"`
	InterestsSub     []string `json:"interestsSub,omitempty"`
	GrantsByInterest []string `json:"grantsByInterest,omitempty"`
}

// MergedKeywords lowercases and merges the three interest lists,
// deduplicating while preserving first-seen order. An empty result means
// the profile cannot match anything.
func (p *Profile) MergedKeywords() []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range [][]string{p.InterestsMain, p.InterestsSub, p.GrantsByInterest} {
		for _, kw := range list {
			kw = strings.ToLower(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			merged = append(merged, kw)
		}
	}
	return merged
}

// MatchResult is an Opportunity annotated with the engine's derived fields.
// Derived fields are outputs only, recomputed fresh on every request.
type MatchResult struct {
	Opportunity
	Score            float64 `json:"score"`
	UrgencyBucket    string  `json:"urgencyBucket"`
	WinRate          float64 `json:"winRate"`
	WinRateReasoning string  `json:"winRateReasoning"`
}

// MarshalJSON layers the derived fields over the opportunity's document.
// Without this, the embedded Opportunity's marshaler would be promoted
// and the derived fields would vanish from responses.
func (m MatchResult) MarshalJSON() ([]byte, error) {
	base, err := m.Opportunity.MarshalJSON()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]interface{})
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	merged["score"] = m.Score
	merged["urgencyBucket"] = m.UrgencyBucket
	merged["winRate"] = m.WinRate
	merged["winRateReasoning"] = m.WinRateReasoning
	return json.Marshal(merged)
}
