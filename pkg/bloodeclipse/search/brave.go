package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const (
	braveSearchURL = "https://api.search.brave.com/res/v1/web/search"
	maxBraveBody   = 512 * 1024
)

// Brave queries the Brave Search API.
type Brave struct {
	client   *http.Client
	apiKey   string
	endpoint string
}

// NewBrave creates a Brave Search provider.
func NewBrave(client *http.Client, apiKey, endpoint string) *Brave {
	if endpoint == "" {
		endpoint = braveSearchURL
	}
	return &Brave{client: client, apiKey: apiKey, endpoint: endpoint}
}

// Name returns "brave".
func (b *Brave) Name() string { return "brave" }

// Search queries the Brave Search API and returns its web results.
func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	searchURL := fmt.Sprintf("%s?q=%s&count=%d", b.endpoint, url.QueryEscape(query), clampLimit(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search failed: %w", err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave search returned %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBraveBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading brave results: %w", err)
	}
	if len(body) > maxBraveBody {
		return nil, fmt.Errorf("brave results exceed %d bytes", maxBraveBody)
	}

	var result struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing brave results: %w", err)
	}

	results := make([]Result, 0, len(result.Web.Results))
	for _, r := range result.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: plainText(r.Description)})
	}
	return results, nil
}

// plainText drops the <strong> highlighting Brave puts in descriptions and
// decodes HTML entities.
func plainText(s string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
