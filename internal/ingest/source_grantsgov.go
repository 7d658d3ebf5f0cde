package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// GrantsGovSource pulls opportunities from the Grants.gov search2 API into
// the grants.gov collection.
type GrantsGovSource struct {
	client *http.Client
	cfg    FeedConfig
}

func NewGrantsGovSource(cfg FeedConfig) *GrantsGovSource {
	timeout := time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.grants.gov/v1/api/search2"
	}
	if cfg.Rows == 0 {
		cfg.Rows = 100
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 5
	}
	return &GrantsGovSource{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

func (s *GrantsGovSource) ID() string         { return s.cfg.ID }
func (s *GrantsGovSource) Collection() string { return s.cfg.Collection }

// grantsGovSearchRequest matches the Grants.gov search2 API schema.
type grantsGovSearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	SortBy         string `json:"sortBy"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

// grantsGovResponse represents the search2 API response (wrapped in "data").
type grantsGovResponse struct {
	Data struct {
		HitCount    int               `json:"hitCount"`
		StartRecord int               `json:"startRecord"`
		OppHits     []grantsGovRecord `json:"oppHits"`
	} `json:"data"`
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
}

type grantsGovRecord struct {
	ID         string   `json:"id"`
	Number     string   `json:"number"`
	Title      string   `json:"title"`
	Agency     string   `json:"agency"`
	AgencyCode string   `json:"agencyCode"`
	OpenDate   string   `json:"openDate"`
	CloseDate  string   `json:"closeDate"`
	OppStatus  string   `json:"oppStatus"`
	DocType    string   `json:"docType"`
	CFDAList   []string `json:"cfdaList"`
}

// FetchDocuments pages through the search2 API until MaxPages or the hit
// count is exhausted.
func (s *GrantsGovSource) FetchDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	startRecord := 0

	for page := 0; page < s.cfg.MaxPages; page++ {
		records, hitCount, err := s.fetchPage(ctx, startRecord)
		if err != nil {
			if len(docs) > 0 {
				log.Printf("[grants.gov] page %d failed, keeping %d fetched docs: %v", page, len(docs), err)
				break
			}
			return nil, err
		}

		for _, rec := range records {
			if doc, ok := s.toDocument(rec); ok {
				docs = append(docs, doc)
			}
		}

		startRecord += s.cfg.Rows
		if startRecord >= hitCount || len(records) == 0 {
			break
		}
	}

	return docs, nil
}

func (s *GrantsGovSource) fetchPage(ctx context.Context, startRecord int) ([]grantsGovRecord, int, error) {
	searchReq := grantsGovSearchRequest{
		Keyword:        s.cfg.Keyword,
		OppStatuses:    "posted",
		SortBy:         "openDate|desc",
		Rows:           s.cfg.Rows,
		StartRecordNum: startRecord,
	}

	jsonBody, err := json.Marshal(searchReq)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Printf("[grants.gov] Fetching page startRecord=%d rows=%d keyword=%q", startRecord, s.cfg.Rows, s.cfg.Keyword)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(body))
	}

	var apiResp grantsGovResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, 0, fmt.Errorf("decoding response: %w", err)
	}
	if apiResp.ErrorCode != 0 {
		return nil, 0, fmt.Errorf("API error: %s", apiResp.Msg)
	}

	return apiResp.Data.OppHits, apiResp.Data.HitCount, nil
}

// toDocument maps one API record onto the stored document shape. Records
// without a title or id are dropped.
func (s *GrantsGovSource) toDocument(rec grantsGovRecord) (Document, bool) {
	if rec.ID == "" || rec.Title == "" {
		return nil, false
	}

	doc := Document{
		"id":      rec.ID,
		"title":   rec.Title,
		"agency":  rec.Agency,
		"summary": fmt.Sprintf("Federal grant from %s. CFDA: %s", rec.Agency, strings.Join(rec.CFDAList, ", ")),
		"url":     fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", rec.ID),
	}
	if rec.AgencyCode != "" {
		doc["department"] = rec.AgencyCode
	}
	if rec.Number != "" {
		doc["opportunityNumber"] = rec.Number
	}
	if rec.DocType != "" {
		doc["docType"] = rec.DocType
	}
	if rec.OppStatus != "" {
		doc["oppStatus"] = rec.OppStatus
	}
	if len(rec.CFDAList) > 0 {
		doc["cfdaList"] = rec.CFDAList
	}

	// Dates arrive as MM/DD/YYYY.
	if t, ok := ParseDeadline(rec.CloseDate); ok {
		doc["closeDate"] = t.Format(time.RFC3339)
	}
	if t, ok := ParseDeadline(rec.OpenDate); ok {
		doc["openDate"] = t.Format(time.RFC3339)
	}

	return doc, true
}
