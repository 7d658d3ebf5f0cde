package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/feeds.yaml
var feedsYAML embed.FS

// Registry holds the configuration for all feed sources.
type Registry struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// FetchConfig defines HTTP fetching configuration for a feed.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
}

// FeedConfig defines a single feed to synchronize into a collection.
type FeedConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Collection string `yaml:"collection"`
	Strategy   string `yaml:"strategy"` // "api_grants_gov", "html_listing"

	// api_grants_gov
	BaseURL  string `yaml:"base_url,omitempty"`
	Keyword  string `yaml:"keyword,omitempty"`
	Rows     int    `yaml:"rows,omitempty"`
	MaxPages int    `yaml:"max_pages,omitempty"`

	// html_listing
	Seeds     []string       `yaml:"seed_urls,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// Follow PDF links on listings to recover missing deadlines.
	PDFDeadlines bool `yaml:"pdf_deadlines,omitempty"`
}

// SelectorConfig drives the generic HTML listing strategy.
type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // CSS selector for the list item wrapper
	Link      string `yaml:"link,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Summary   string `yaml:"summary,omitempty"`
	Date      string `yaml:"date,omitempty"`
}

// LoadRegistry reads the embedded feeds.yaml. The path parameter is a
// filesystem fallback for local development and may be empty.
func LoadRegistry(path string) (*Registry, error) {
	data, err := feedsYAML.ReadFile("config/feeds.yaml")
	if err != nil {
		if path == "" {
			return nil, err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	// Expand environment variables within the YAML content (e.g. ${API_KEY})
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing feed registry: %w", err)
	}

	return &reg, nil
}

// Feed returns the config with the given id.
func (r *Registry) Feed(id string) (FeedConfig, error) {
	for _, f := range r.Feeds {
		if f.ID == id {
			return f, nil
		}
	}
	return FeedConfig{}, fmt.Errorf("unknown feed %q", id)
}
