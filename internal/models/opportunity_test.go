package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeOpportunity(t *testing.T) {
	doc := map[string]interface{}{
		"id":          "gg-123",
		"title":       "Community Health Grant",
		"description": "Funding for rural clinics",
		"closeDate":   "2026-06-15T00:00:00Z",
		"awardFloor":  25000.0,
		"eligibility": []interface{}{"nonprofits"},
	}

	opp, err := DecodeOpportunity(doc)
	if err != nil {
		t.Fatalf("DecodeOpportunity failed: %v", err)
	}

	if opp.ID != "gg-123" || opp.Title != "Community Health Grant" {
		t.Errorf("typed fields not decoded: %+v", opp)
	}
	if opp.CloseDate == nil {
		t.Fatal("closeDate string was not decoded to time.Time")
	}
	if want := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC); !opp.CloseDate.Equal(want) {
		t.Errorf("closeDate: expected %v, got %v", want, opp.CloseDate)
	}

	// Unmodeled fields land in Extra untouched.
	if opp.Extra["awardFloor"] != 25000.0 {
		t.Errorf("awardFloor not carried through: %v", opp.Extra)
	}
	if _, ok := opp.Extra["eligibility"]; !ok {
		t.Errorf("eligibility not carried through: %v", opp.Extra)
	}
	if _, ok := opp.Extra["title"]; ok {
		t.Error("modeled field leaked into Extra")
	}
}

func TestOpportunityMarshalKeepsExtra(t *testing.T) {
	opp, err := DecodeOpportunity(map[string]interface{}{
		"id":          "g1",
		"title":       "Education Access Grant",
		"awardAmount": 50000.0,
		"locations":   []interface{}{"OH", "KY"},
	})
	if err != nil {
		t.Fatalf("DecodeOpportunity failed: %v", err)
	}

	raw, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out["title"] != "Education Access Grant" {
		t.Errorf("modeled field missing: %v", out)
	}
	if out["awardAmount"] != 50000.0 {
		t.Errorf("passthrough field lost on marshal: %v", out)
	}
	if _, ok := out["locations"]; !ok {
		t.Errorf("passthrough field lost on marshal: %v", out)
	}
}

func TestOpportunityMarshalModeledFieldWins(t *testing.T) {
	opp := Opportunity{
		ID:    "g1",
		Title: "Modeled Title",
		Extra: map[string]interface{}{"title": "stale copy"},
	}
	raw, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if out["title"] != "Modeled Title" {
		t.Errorf("modeled field must win on collision, got %v", out["title"])
	}
}

func TestMatchResultMarshalKeepsExtraAndDerived(t *testing.T) {
	opp, err := DecodeOpportunity(map[string]interface{}{
		"id":          "g1",
		"title":       "Education Access Grant",
		"awardAmount": 50000.0,
	})
	if err != nil {
		t.Fatalf("DecodeOpportunity failed: %v", err)
	}

	m := MatchResult{
		Opportunity:      opp,
		Score:            15,
		UrgencyBucket:    "ongoing",
		WinRate:          24.5,
		WinRateReasoning: "Win rate calculated based on: relevance score.",
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out["awardAmount"] != 50000.0 {
		t.Errorf("passthrough field lost on marshal: %v", out)
	}
	if out["score"] != 15.0 || out["winRate"] != 24.5 {
		t.Errorf("derived fields lost on marshal: %v", out)
	}
	if out["urgencyBucket"] != "ongoing" {
		t.Errorf("derived fields lost on marshal: %v", out)
	}
	if out["title"] != "Education Access Grant" {
		t.Errorf("modeled field missing: %v", out)
	}
}

func TestDecodeOpportunityNativeTime(t *testing.T) {
	deadline := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	opp, err := DecodeOpportunity(map[string]interface{}{
		"id":       "x",
		"deadline": deadline,
	})
	if err != nil {
		t.Fatalf("DecodeOpportunity failed: %v", err)
	}
	if opp.Deadline == nil || !opp.Deadline.Equal(deadline) {
		t.Errorf("native time.Time not decoded: %v", opp.Deadline)
	}
}

func TestEffectiveDeadline(t *testing.T) {
	closeDate := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		opp      Opportunity
		expected *time.Time
	}{
		{"closeDate preferred", Opportunity{CloseDate: &closeDate, Deadline: &deadline}, &closeDate},
		{"deadline fallback", Opportunity{Deadline: &deadline}, &deadline},
		{"neither", Opportunity{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opp.EffectiveDeadline()
			if (got == nil) != (tt.expected == nil) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			if got != nil && !got.Equal(*tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSearchText(t *testing.T) {
	opp := Opportunity{
		Title:      "Education Grant",
		Summary:    "STEM outreach",
		Agency:     "Dept of Education",
		Department: "Grants Office",
	}
	want := "education grant  stem outreach dept of education grants office"
	if got := opp.SearchText(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHasApplicationForm(t *testing.T) {
	tests := []struct {
		name     string
		opp      Opportunity
		expected bool
	}{
		{"applicationUrl", Opportunity{ApplicationURL: "https://x/apply"}, true},
		{"applyUrl", Opportunity{ApplyURL: "https://x/apply"}, true},
		{"formUrl", Opportunity{FormURL: "https://x/form"}, true},
		{"none", Opportunity{URL: "https://x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opp.HasApplicationForm(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMergedKeywords(t *testing.T) {
	p := Profile{
		InterestsMain:    []string{"Education", "health"},
		InterestsSub:     []string{"HEALTH", "literacy", ""},
		GrantsByInterest: []string{"education", "arts"},
	}
	got := p.MergedKeywords()
	want := []string{"education", "health", "literacy", "arts"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMergedKeywordsEmpty(t *testing.T) {
	p := Profile{InterestsMain: []string{"", ""}}
	if got := p.MergedKeywords(); len(got) != 0 {
		t.Errorf("expected no keywords, got %v", got)
	}
}
