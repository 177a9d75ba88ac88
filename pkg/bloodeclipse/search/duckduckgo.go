package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const duckDuckGoLiteURL = "https://lite.duckduckgo.com/lite/"

// DuckDuckGo scrapes the DuckDuckGo lite results page. It needs no API key.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
}

// NewDuckDuckGo creates a scraping provider. An empty endpoint uses the
// public lite page.
func NewDuckDuckGo(client *http.Client, endpoint string) *DuckDuckGo {
	if endpoint == "" {
		endpoint = duckDuckGoLiteURL
	}
	return &DuckDuckGo{client: client, endpoint: endpoint}
}

// Name returns "duckduckgo".
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search fetches the results page and parses its result rows.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	searchURL := d.endpoint + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search failed: %w", err)
	}
	defer resp.Body.Close()

	if !successStatus(resp.StatusCode) {
		return nil, fmt.Errorf("duckduckgo search returned %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %w", err)
	}

	return extractLiteResults(doc, clampLimit(limit)), nil
}

// extractLiteResults walks the <tr> rows of a lite results page. A row with
// an a.result-link opens a result; a row with .result-snippet completes the
// open one. Only complete results are kept.
func extractLiteResults(doc *html.Node, limit int) []Result {
	var (
		results []Result
		open    *Result
	)

	for _, row := range findAll(doc, "tr") {
		if len(results) >= limit {
			break
		}

		if link := findByClass(row, "a", "result-link"); link != nil {
			open = &Result{
				Title: textContent(link),
				URL:   unwrapRedirect(attr(link, "href")),
			}
		}

		if snippet := findByClass(row, "", "result-snippet"); snippet != nil && open != nil {
			open.Snippet = textContent(snippet)
			if open.Valid() {
				results = append(results, *open)
			}
			open = nil
		}
	}

	return results
}

// unwrapRedirect extracts the target of a DuckDuckGo /l/?uddg= redirect.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasPrefix(u.Path, "/l/") {
		return target
	}
	return href
}

// ---------- HTML helpers ----------

// findAll returns the elements named tag in document order without
// descending into a match.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// findByClass returns the first descendant (or n itself) carrying class.
// An empty tag matches any element.
func findByClass(n *html.Node, tag, class string) *html.Node {
	if n.Type == html.ElementNode && (tag == "" || n.Data == tag) && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, tag, class); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the whitespace-normalized text below n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
