// Package notion fetches pages from the Notion API.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

const (
	// DefaultBaseURL is the Notion API root.
	DefaultBaseURL = "https://api.notion.com"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// apiVersion pins the Notion-Version header.
	apiVersion = "2022-06-28"

	// requestsPerSecond respects Notion's documented average limit.
	requestsPerSecond = 3

	// maxPageSize is Notion's maximum for search pagination.
	maxPageSize = 100
)

var _ driven.Connector = (*Connector)(nil)

// Config holds Notion connector configuration.
type Config struct {
	// Token is the integration token (required).
	Token string

	// WorkspaceID labels documents from this integration. Notion does
	// not expose a workspace ID on the API, so the caller supplies one.
	WorkspaceID string

	// BaseURL overrides the API root, for tests.
	BaseURL string
}

// Connector fetches pages shared with the integration. Notion has no
// channel structure, so the whole workspace is a single partition and
// the sync cursor is an RFC 3339 last-edited-time watermark.
type Connector struct {
	client      *http.Client
	limiter     *rate.Limiter
	baseURL     string
	token       string
	workspaceID string
}

// New creates a Notion connector.
func New(cfg Config) *Connector {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	workspaceID := cfg.WorkspaceID
	if workspaceID == "" {
		workspaceID = "default"
	}
	return &Connector{
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		baseURL:     baseURL,
		token:       cfg.Token,
		workspaceID: workspaceID,
	}
}

// Source returns the source type this connector serves.
func (c *Connector) Source() domain.SourceType {
	return domain.SourceNotion
}

// ConnectionStatus validates the token against the bot user endpoint.
func (c *Connector) ConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error) {
	if c.token == "" {
		return domain.ConnectionStatus{}, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/users/me", nil)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ConnectionStatus{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ConnectionStatus{}, fmt.Errorf("notion users/me: status %d", resp.StatusCode)
	}
	return domain.ConnectionStatus{Connected: true, WorkspaceID: c.workspaceID}, nil
}

// Partitions returns the single workspace-wide partition.
func (c *Connector) Partitions(context.Context) ([]domain.Partition, error) {
	return []domain.Partition{{ID: "", Name: "workspace"}}, nil
}

type searchRequest struct {
	Filter      *searchFilter `json:"filter,omitempty"`
	Sort        searchSort    `json:"sort"`
	StartCursor string        `json:"start_cursor,omitempty"`
	PageSize    int           `json:"page_size"`
}

type searchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type searchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

type searchResponse struct {
	Results []struct {
		ID             string                  `json:"id"`
		URL            string                  `json:"url"`
		LastEditedTime time.Time               `json:"last_edited_time"`
		Properties     map[string]pageProperty `json:"properties"`
	} `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type pageProperty struct {
	Type     string     `json:"type"`
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
}

type richText struct {
	PlainText string `json:"plain_text"`
}

// FetchSince returns pages edited strictly after the cursor watermark.
// The search endpoint sorts newest first, so the scan stops as soon as
// it crosses the watermark.
func (c *Connector) FetchSince(ctx context.Context, _ string, cursor string, limit int) (*domain.FetchPage, error) {
	var since time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, fmt.Errorf("notion cursor %q: %w", cursor, err)
		}
		since = t
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	body := searchRequest{
		Filter:   &searchFilter{Property: "object", Value: "page"},
		Sort:     searchSort{Direction: "descending", Timestamp: "last_edited_time"},
		PageSize: limit,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("notion search: encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("notion search: status %d: %s", resp.StatusCode, msg)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("notion search: decode response: %w", err)
	}

	page := &domain.FetchPage{}
	var newest time.Time
	for _, p := range result.Results {
		if !p.LastEditedTime.After(since) {
			break
		}
		if p.LastEditedTime.After(newest) {
			newest = p.LastEditedTime
		}

		title := pageTitle(p.Properties)
		content := pageText(p.Properties)
		if content == "" {
			content = title
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		page.Items = append(page.Items, domain.Document{
			ID:          domain.DocumentID(domain.SourceNotion, c.workspaceID, p.ID),
			Source:      domain.SourceNotion,
			WorkspaceID: c.workspaceID,
			Title:       title,
			Content:     content,
			URL:         p.URL,
			Timestamp:   p.LastEditedTime.UTC(),
			ContentHash: domain.ComputeContentHash(content),
		})
	}
	if len(page.Items) > 0 {
		page.NextCursor = newest.UTC().Format(time.RFC3339Nano)
	}
	return page, nil
}

func (c *Connector) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("notion %s: create request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Connector) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("notion rate limiter: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: notion %s", domain.ErrRateLimited, req.URL.Path)
	}
	return resp, nil
}

// pageTitle extracts the first title property's plain text.
func pageTitle(props map[string]pageProperty) string {
	for _, p := range props {
		if p.Type == "title" {
			return joinRichText(p.Title)
		}
	}
	return ""
}

// pageText concatenates every rich_text property. Block children need
// per-page requests, so properties are the sync unit.
func pageText(props map[string]pageProperty) string {
	var parts []string
	for _, p := range props {
		if p.Type == "rich_text" {
			if text := joinRichText(p.RichText); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func joinRichText(spans []richText) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.PlainText)
	}
	return strings.TrimSpace(b.String())
}
