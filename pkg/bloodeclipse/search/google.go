package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const googleCSEURL = "https://www.googleapis.com/customsearch/v1"

// Google queries the Custom Search JSON API.
type Google struct {
	client   *http.Client
	apiKey   string
	cseID    string
	endpoint string
}

// NewGoogle creates a Custom Search provider.
func NewGoogle(client *http.Client, apiKey, cseID, endpoint string) *Google {
	if endpoint == "" {
		endpoint = googleCSEURL
	}
	return &Google{client: client, apiKey: apiKey, cseID: cseID, endpoint: endpoint}
}

// Name returns "google".
func (g *Google) Name() string { return "google" }

// Search runs a Custom Search query.
func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cseID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(clampLimit(limit)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search failed: %w", err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google search returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 512*1024)).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing google results: %w", err)
	}

	results := make([]Result, 0, len(result.Items))
	for _, it := range result.Items {
		results = append(results, Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return results, nil
}
