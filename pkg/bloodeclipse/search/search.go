// Package search implements the web search providers BloodEclipse uses to
// ground answers: a DuckDuckGo lite scrape, the Google Custom Search JSON API
// and the Brave Search API. Service wraps a provider with a contract that
// never fails: failures turn into a sentinel context string.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel context strings handed to the summarizer instead of snippets.
const (
	NoResultsContext = "No relevant search results found."
	FailedContext    = "Search tool currently failed or is blocked."
)

const (
	// MaxResultsCap bounds how many rows a provider may return.
	MaxResultsCap = 10

	// MaxLinks is how many source links a lookup keeps.
	MaxLinks = 5

	// userAgent is sent to the scraped results page.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0 Safari/537.36"
)

// Errors.
var (
	ErrUnknownProvider = errors.New("unknown search provider")
	ErrMissingKey      = errors.New("search provider credentials are missing")
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Valid reports whether every field of the hit is present.
func (r Result) Valid() bool {
	return r.Title != "" && r.URL != "" && r.Snippet != ""
}

// Provider performs a single search request.
type Provider interface {
	// Name returns the provider identifier (e.g. "duckduckgo").
	Name() string

	// Search returns up to limit results for the query.
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Config configures the search stage.
type Config struct {
	// Provider selects the backend: "duckduckgo", "google" or "brave".
	Provider string `yaml:"provider"`

	// MaxResults is how many rows to request (capped at 10).
	MaxResults int `yaml:"max_results"`

	// BiasTerms are appended to every query to steer results to the game.
	BiasTerms []string `yaml:"bias_terms"`

	// Timeout bounds a single search call.
	Timeout time.Duration `yaml:"timeout"`

	// Endpoint overrides the provider's default URL.
	Endpoint string `yaml:"endpoint"`

	// GoogleAPIKey and GoogleCSEID authenticate the Custom Search API.
	GoogleAPIKey string `yaml:"google_api_key"`
	GoogleCSEID  string `yaml:"google_cse_id"`

	// BraveAPIKey authenticates the Brave Search API.
	BraveAPIKey string `yaml:"brave_api_key"`
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		Provider:   "duckduckgo",
		MaxResults: MaxResultsCap,
		BiasTerms:  []string{"Where Winds Meet"},
		Timeout:    15 * time.Second,
	}
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case "", "duckduckgo", "ddg":
		return NewDuckDuckGo(client, cfg.Endpoint), nil
	case "google":
		if cfg.GoogleAPIKey == "" || cfg.GoogleCSEID == "" {
			return nil, fmt.Errorf("google: %w", ErrMissingKey)
		}
		return NewGoogle(client, cfg.GoogleAPIKey, cfg.GoogleCSEID, cfg.Endpoint), nil
	case "brave":
		if cfg.BraveAPIKey == "" {
			return nil, fmt.Errorf("brave: %w", ErrMissingKey)
		}
		return NewBrave(client, cfg.BraveAPIKey, cfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// successStatus reports whether code is a 2xx status.
func successStatus(code int) bool {
	return code >= 200 && code <= 299
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxResultsCap {
		return MaxResultsCap
	}
	return limit
}
