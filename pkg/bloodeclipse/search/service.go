package search

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Findings is what a lookup hands to the summarizer.
type Findings struct {
	// Context holds "Title: ...\nSnippet: ..." blocks, or a sentinel string.
	Context string

	// Links are the first valid result URLs (at most MaxLinks).
	Links []string

	// Results are the valid rows the context was built from.
	Results []Result
}

// Service runs lookups against a provider. Lookup never returns an error.
type Service struct {
	provider   Provider
	maxResults int
	biasTerms  []string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService wraps a provider with the lookup contract.
func NewService(provider Provider, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		provider:   provider,
		maxResults: clampLimit(cfg.MaxResults),
		biasTerms:  cfg.BiasTerms,
		timeout:    timeout,
		logger:     logger.With("component", "search", "provider", provider.Name()),
	}
}

// Provider returns the wrapped provider.
func (s *Service) Provider() Provider { return s.provider }

// Lookup searches for query and assembles the summarizer context. Provider
// failures yield FailedContext and zero valid rows yield NoResultsContext;
// in both cases Links is empty.
func (s *Service) Lookup(ctx context.Context, query string) Findings {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	biased := s.applyBias(query)
	start := time.Now()

	results, err := s.provider.Search(ctx, biased, s.maxResults)
	if err != nil {
		s.logger.Warn("search failed", "query", biased, "error", err)
		return Findings{Context: FailedContext}
	}

	findings := BuildFindings(results, s.maxResults)
	s.logger.Debug("search done",
		"query", biased,
		"rows", len(results),
		"valid", len(findings.Results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return findings
}

// applyBias appends every bias term the query does not already mention.
func (s *Service) applyBias(query string) string {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)
	for _, term := range s.biasTerms {
		term = strings.TrimSpace(term)
		if term == "" || strings.Contains(lower, strings.ToLower(term)) {
			continue
		}
		query += " " + term
	}
	return query
}

// BuildFindings keeps up to limit valid results and renders the context
// blocks and source links.
func BuildFindings(results []Result, limit int) Findings {
	limit = clampLimit(limit)

	var (
		valid  []Result
		blocks []string
		links  []string
	)
	for _, r := range results {
		if len(valid) >= limit {
			break
		}
		r.Title = strings.TrimSpace(r.Title)
		r.URL = strings.TrimSpace(r.URL)
		r.Snippet = strings.TrimSpace(r.Snippet)
		if !r.Valid() {
			continue
		}
		valid = append(valid, r)
		blocks = append(blocks, "Title: "+r.Title+"\nSnippet: "+r.Snippet)
		if len(links) < MaxLinks {
			links = append(links, r.URL)
		}
	}

	if len(valid) == 0 {
		return Findings{Context: NoResultsContext}
	}
	return Findings{
		Context: strings.Join(blocks, "\n\n"),
		Links:   links,
		Results: valid,
	}
}
