// Package rerank provides a Reranker adapter that talks to the hosted
// rerank proxy, a thin worker in front of a cross-encoder model.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
	"github.com/recall-labs/recall-cli/internal/logger"
)

// Default configuration values.
const (
	DefaultTimeout = 15 * time.Second

	// maxRetries bounds retry attempts on 429 and 5xx responses.
	maxRetries = 2
)

var _ driven.Reranker = (*Client)(nil)

// Config holds configuration for the rerank client.
type Config struct {
	// URL is the rerank endpoint (required).
	URL string

	// APIKey authenticates against the proxy, if it requires one.
	APIKey string

	// Timeout is the request timeout (default: 15s).
	Timeout time.Duration
}

// Client reorders candidates through the remote reranker. Reranking is
// strictly an enhancement: any failure, malformed response or empty
// query degrades to the incoming order with synthetic descending
// scores, never an error.
type Client struct {
	client *http.Client
	url    string
	apiKey string
}

// rerankRequest is the proxy request format.
type rerankRequest struct {
	Query     string                  `json:"query"`
	Documents []domain.RerankDocument `json:"documents"`
	TopN      int                     `json:"topN"`
}

// rerankResponse is the proxy response format.
type rerankResponse struct {
	Results []domain.RerankResult `json:"results"`
}

// NewClient creates a rerank client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rerank: URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		apiKey: cfg.APIKey,
	}, nil
}

// Rerank scores documents against the query, returning them in
// relevance order truncated to topN.
func (c *Client) Rerank(ctx context.Context, query string, documents []domain.RerankDocument, topN int) ([]domain.RerankResult, error) {
	if len(documents) == 0 {
		return []domain.RerankResult{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}
	// A single candidate or a blank query leaves nothing to reorder.
	if len(documents) == 1 || strings.TrimSpace(query) == "" {
		return fallbackOrder(documents, topN), nil
	}

	results, err := c.call(ctx, query, documents, topN)
	if err != nil {
		logger.Warn("Rerank call failed, keeping incoming order: %v", err)
		return fallbackOrder(documents, topN), nil
	}
	if !validResults(results, documents) {
		logger.Warn("Rerank response malformed, keeping incoming order")
		return fallbackOrder(documents, topN), nil
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func (c *Client) call(ctx context.Context, query string, documents []domain.RerankDocument, topN int) ([]domain.RerankResult, error) {
	jsonBody, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var rerankResp rerankResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("%w: rerank status %d", domain.ErrRateLimited, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("rerank error (status %d): %s", resp.StatusCode, string(body)))
		}
		if err := json.Unmarshal(body, &rerankResp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return rerankResp.Results, nil
}

// validResults checks the response references only known document ids.
func validResults(results []domain.RerankResult, documents []domain.RerankDocument) bool {
	if len(results) == 0 {
		return false
	}
	known := make(map[string]bool, len(documents))
	for _, d := range documents {
		known[d.ID] = true
	}
	for _, r := range results {
		if !known[r.ID] {
			return false
		}
	}
	return true
}

// fallbackOrder preserves the incoming order with synthetic descending
// scores so downstream stages still see a monotonic ranking.
func fallbackOrder(documents []domain.RerankDocument, topN int) []domain.RerankResult {
	n := len(documents)
	results := make([]domain.RerankResult, 0, topN)
	for i := 0; i < topN; i++ {
		results = append(results, domain.RerankResult{
			ID:        documents[i].ID,
			Relevance: 1 - float64(i)/float64(n),
			Index:     i,
		})
	}
	return results
}
