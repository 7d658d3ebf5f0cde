package appform

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/The-culture-connection/rfpueen/internal/models"
)

// applicationKeywords flag link and form text that points at an apply flow.
var applicationKeywords = []string{
	"apply", "application", "submit", "submission", "form",
	"register", "registration", "apply now", "submit proposal",
	"application form", "apply online", "submit application",
}

// formFieldKeywords are input names typical of grant application forms.
var formFieldKeywords = []string{
	"name", "email", "organization", "proposal", "budget",
	"project", "grant", "application", "contact",
}

// applicationURLPatterns are path fragments that suggest an apply page.
var applicationURLPatterns = []string{
	"/apply", "/application", "/submit", "/form",
	"/register", "/submission", "/proposal",
}

// avoidKeywords filter out job-board style links that would otherwise
// match the application keywords.
var avoidKeywords = []string{"job", "career", "vacancy", "employment", "intern"}

var urlInTextRE = regexp.MustCompile(`https?://[^\s<>"')]+`)

// PageFetcher retrieves one page body. Satisfied by a thin adapter over
// the ingest fetchers.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (io.ReadCloser, error)
}

// Result is the outcome of a form search: either a direct URL or manual
// pathway steps, with a confidence estimate for the URL.
type Result struct {
	URL        string   `json:"url,omitempty"`
	Steps      []string `json:"steps,omitempty"`
	Confidence float64  `json:"confidence"`
	Found      bool     `json:"found"`
}

// Finder locates application forms for opportunities: direct URL fields
// first, then URLs embedded in the description, then a crawl of the
// opportunity page.
type Finder struct {
	fetcher  PageFetcher
	maxDepth int
}

func NewFinder(fetcher PageFetcher) *Finder {
	return &Finder{fetcher: fetcher, maxDepth: 2}
}

// Find returns the application form URL for an opportunity, or manual
// steps when no form can be located.
func (f *Finder) Find(ctx context.Context, opp models.Opportunity) Result {
	for _, direct := range []string{opp.ApplicationURL, opp.ApplyURL, opp.FormURL} {
		if isValidURL(direct) && urlSuggestsForm(direct) {
			return Result{URL: direct, Confidence: 0.9, Found: true}
		}
	}

	// URLs mentioned inside the description are the next best lead.
	for _, embedded := range urlInTextRE.FindAllString(opp.Description, -1) {
		embedded = strings.TrimRight(embedded, ".,;")
		if isValidURL(embedded) && urlSuggestsForm(embedded) && !urlLooksAvoidable(embedded) {
			return Result{URL: embedded, Confidence: 0.7, Found: true}
		}
	}

	if isValidURL(opp.URL) {
		if r, ok := f.scanPage(ctx, opp.URL, 0); ok {
			return r
		}
	}

	return fallbackSteps(opp)
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func urlSuggestsForm(raw string) bool {
	lower := strings.ToLower(raw)
	for _, pattern := range applicationURLPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func urlLooksAvoidable(raw string) bool {
	return containsAvoidKeyword(strings.ToLower(raw))
}

func containsApplicationKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range applicationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsAvoidKeyword(lower string) bool {
	for _, kw := range avoidKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// scanPage looks for an application form on one page, following promising
// links up to maxDepth.
func (f *Finder) scanPage(ctx context.Context, pageURL string, depth int) (Result, bool) {
	if depth > f.maxDepth {
		return Result{}, false
	}

	doc, err := f.fetch(ctx, pageURL)
	if err != nil {
		return Result{}, false
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return Result{}, false
	}

	// Forms on the page itself win.
	var found Result
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if !isApplicationForm(form) {
			return true
		}
		action, _ := form.Attr("action")
		if action == "" {
			return true
		}
		found = Result{
			URL:        resolveURL(base, action),
			Steps:      []string{"Found application form on the opportunity page. Fill out the form to apply."},
			Confidence: 0.8,
			Found:      true,
		}
		return false
	})
	if found.Found {
		return found, true
	}

	// Otherwise follow links whose text suggests an apply flow, skipping
	// job-board noise.
	var linkResult Result
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := strings.TrimSpace(link.Text())
		lower := strings.ToLower(text)
		if !containsApplicationKeyword(lower) || containsAvoidKeyword(lower) {
			return true
		}
		href, _ := link.Attr("href")
		target := resolveURL(base, href)
		if !isValidURL(target) || target == pageURL || urlLooksAvoidable(target) {
			return true
		}

		if depth < f.maxDepth {
			if r, ok := f.scanPage(ctx, target, depth+1); ok {
				linkResult = r
				return false
			}
			return true
		}

		linkResult = Result{
			URL:        target,
			Steps:      []string{fmt.Sprintf("Found application link: %q. Click to access the application form.", text)},
			Confidence: 0.6,
			Found:      true,
		}
		return false
	})
	if linkResult.Found {
		return linkResult, true
	}

	return Result{}, false
}

func (f *Finder) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := f.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return goquery.NewDocumentFromReader(body)
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// isApplicationForm decides whether a form element looks like an
// application form: either its markup mentions several application
// keywords, or its fields carry typical application names.
func isApplicationForm(form *goquery.Selection) bool {
	html, err := goquery.OuterHtml(form)
	if err != nil {
		return false
	}
	lower := strings.ToLower(html)

	keywordCount := 0
	for _, kw := range applicationKeywords {
		if strings.Contains(lower, kw) {
			keywordCount++
		}
	}
	if keywordCount >= 2 {
		return true
	}

	fieldMatches := 0
	form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
		name, _ := field.Attr("name")
		id, _ := field.Attr("id")
		combined := strings.ToLower(name + id)
		for _, kw := range formFieldKeywords {
			if strings.Contains(combined, kw) {
				fieldMatches++
			}
		}
	})
	return fieldMatches >= 3
}

// fallbackSteps builds manual application steps from whatever the
// opportunity document carries.
func fallbackSteps(opp models.Opportunity) Result {
	var steps []string

	if opp.URL != "" {
		steps = append(steps, fmt.Sprintf("Visit the opportunity page: %s", opp.URL))
		steps = append(steps, "Look for an 'Apply', 'Submit', or 'Application' button or link on the page.")
	}

	agency := opp.Agency
	if agency == "" {
		agency = opp.Department
	}
	if agency != "" {
		steps = append(steps, fmt.Sprintf("Contact %s directly for application instructions.", agency))
	}

	if deadline := opp.EffectiveDeadline(); deadline != nil {
		steps = append(steps, fmt.Sprintf("Application deadline: %s", deadline.Format("January 2, 2006")))
	}

	if len(steps) == 0 {
		steps = append(steps, "Check the opportunity page for application details.")
	}

	return Result{Steps: steps, Found: false}
}
