package appform

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"net/http/httptest"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

// plainFetcher is a bare HTTP page fetcher, enough for httptest servers.
type plainFetcher struct{}

func (plainFetcher) FetchPage(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// emptyFetcher serves blank pages.
type emptyFetcher struct{}

func (emptyFetcher) FetchPage(ctx context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func TestFindDirectURL(t *testing.T) {
	f := NewFinder(emptyFetcher{})
	opp := models.Opportunity{ApplyURL: "https://example.org/grants/apply"}

	got := f.Find(context.Background(), opp)
	if !got.Found || got.URL != "https://example.org/grants/apply" {
		t.Fatalf("expected direct apply URL accepted, got %+v", got)
	}
	if got.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", got.Confidence)
	}
}

func TestFindDirectURLWithoutFormHint(t *testing.T) {
	// A direct field whose URL does not look like a form falls through to
	// the later stages (which find nothing here).
	f := NewFinder(emptyFetcher{})
	opp := models.Opportunity{ApplicationURL: "https://example.org/about-us"}

	got := f.Find(context.Background(), opp)
	if got.Found {
		t.Errorf("expected fallback, got %+v", got)
	}
}

func TestFindURLInDescription(t *testing.T) {
	f := NewFinder(emptyFetcher{})
	opp := models.Opportunity{
		Description: "Full details at https://example.org/grants/apply-online. Questions welcome.",
	}

	got := f.Find(context.Background(), opp)
	if !got.Found || got.URL != "https://example.org/grants/apply-online" {
		t.Fatalf("expected embedded URL found, got %+v", got)
	}
	if got.Confidence != 0.7 {
		t.Errorf("expected confidence 0.7, got %v", got.Confidence)
	}
}

func TestFindSkipsJobLinks(t *testing.T) {
	f := NewFinder(emptyFetcher{})
	opp := models.Opportunity{
		Description: "We are hiring: https://example.org/careers/apply",
	}

	got := f.Find(context.Background(), opp)
	if got.Found {
		t.Errorf("career link must not count as an application form, got %+v", got)
	}
}

func TestFindFormOnPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form action="/submit-application">
				<input name="org_name"><input name="contact_email"><textarea name="proposal"></textarea>
			</form>
		</body></html>`))
	}))
	defer srv.Close()

	f := NewFinder(plainFetcher{})
	opp := models.Opportunity{URL: srv.URL + "/opportunity"}

	got := f.Find(context.Background(), opp)
	if !got.Found {
		t.Fatalf("expected form found, got %+v", got)
	}
	if got.URL != srv.URL+"/submit-application" {
		t.Errorf("expected resolved form action, got %q", got.URL)
	}
	if got.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", got.Confidence)
	}
}

func TestFindFollowsApplyLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/opportunity", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/jobs/apply">Apply for jobs</a>
			<a href="/apply-page">Apply Now</a>
		</body></html>`))
	})
	mux.HandleFunc("/apply-page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<form action="/apply-page/submit">
				<input name="name"><input name="email"><input name="budget">
			</form>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFinder(plainFetcher{})
	opp := models.Opportunity{URL: srv.URL + "/opportunity"}

	got := f.Find(context.Background(), opp)
	if !got.Found {
		t.Fatalf("expected form found via apply link, got %+v", got)
	}
	if got.URL != srv.URL+"/apply-page/submit" {
		t.Errorf("expected linked form action (job link skipped), got %q", got.URL)
	}
}

func TestFindFallbackSteps(t *testing.T) {
	deadline := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	f := NewFinder(emptyFetcher{})
	opp := models.Opportunity{
		URL:       "https://example.org/opportunity",
		Agency:    "Department of Education",
		CloseDate: &deadline,
	}

	got := f.Find(context.Background(), opp)
	if got.Found {
		t.Fatalf("expected no form, got %+v", got)
	}
	joined := strings.Join(got.Steps, "\n")
	for _, want := range []string{
		"Visit the opportunity page: https://example.org/opportunity",
		"Department of Education",
		"June 15, 2026",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("steps missing %q:\n%s", want, joined)
		}
	}
}

func TestFindFallbackMinimal(t *testing.T) {
	f := NewFinder(emptyFetcher{})
	got := f.Find(context.Background(), models.Opportunity{})
	if got.Found || len(got.Steps) == 0 {
		t.Errorf("expected generic steps, got %+v", got)
	}
}
