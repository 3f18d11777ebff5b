// Package linear fetches issues from the Linear GraphQL API.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	// DefaultEndpoint is the Linear GraphQL endpoint.
	DefaultEndpoint = "https://api.linear.app/graphql"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// requestsPerSecond keeps the connector well under Linear's
	// per-hour complexity budget.
	requestsPerSecond = 2

	// maxPageSize is Linear's maximum first argument.
	maxPageSize = 250
)

var _ driven.Connector = (*Connector)(nil)

// Config holds Linear connector configuration.
type Config struct {
	// APIKey is a personal API key (required).
	APIKey string

	// Endpoint overrides the GraphQL endpoint, for tests.
	Endpoint string
}

// Connector fetches issues ordered by update time. The organization is
// a single partition and the sync cursor is an RFC 3339 updatedAt
// watermark.
type Connector struct {
	client   *http.Client
	limiter  *rate.Limiter
	endpoint string
	apiKey   string
}

// New creates a Linear connector.
func New(cfg Config) *Connector {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Connector{
		client:   &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
	}
}

// Source returns the source type this connector serves.
func (c *Connector) Source() domain.SourceType {
	return domain.SourceLinear
}

const viewerQuery = `query { viewer { id } organization { id name urlKey } }`

type viewerResponse struct {
	Viewer struct {
		ID string `json:"id"`
	} `json:"viewer"`
	Organization struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		URLKey string `json:"urlKey"`
	} `json:"organization"`
}

// ConnectionStatus validates the key and resolves the organization.
func (c *Connector) ConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error) {
	if c.apiKey == "" {
		return domain.ConnectionStatus{}, nil
	}

	var resp viewerResponse
	if err := c.query(ctx, viewerQuery, nil, &resp); err != nil {
		if isAuthError(err) {
			return domain.ConnectionStatus{}, nil
		}
		return domain.ConnectionStatus{}, err
	}
	if resp.Organization.ID == "" {
		return domain.ConnectionStatus{}, nil
	}
	return domain.ConnectionStatus{Connected: true, WorkspaceID: resp.Organization.ID}, nil
}

// Partitions returns the single organization-wide partition.
func (c *Connector) Partitions(context.Context) ([]domain.Partition, error) {
	return []domain.Partition{{ID: "", Name: "organization"}}, nil
}

const issuesQuery = `query Issues($after: DateTimeOrDuration, $first: Int!) {
  issues(
    filter: { updatedAt: { gt: $after } }
    orderBy: updatedAt
    first: $first
  ) {
    nodes {
      id
      identifier
      title
      description
      url
      updatedAt
    }
  }
}`

const allIssuesQuery = `query Issues($first: Int!) {
  issues(orderBy: updatedAt, first: $first) {
    nodes {
      id
      identifier
      title
      description
      url
      updatedAt
    }
  }
}`

type issuesResponse struct {
	Issues struct {
		Nodes []struct {
			ID          string    `json:"id"`
			Identifier  string    `json:"identifier"`
			Title       string    `json:"title"`
			Description string    `json:"description"`
			URL         string    `json:"url"`
			UpdatedAt   time.Time `json:"updatedAt"`
		} `json:"nodes"`
	} `json:"issues"`
}

// FetchSince returns issues updated strictly after the cursor watermark.
func (c *Connector) FetchSince(ctx context.Context, _ string, cursor string, limit int) (*domain.FetchPage, error) {
	status, err := c.ConnectionStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Connected {
		return nil, domain.ErrNotConnected
	}

	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	query := allIssuesQuery
	vars := map[string]any{"first": limit}
	if cursor != "" {
		if _, err := time.Parse(time.RFC3339Nano, cursor); err != nil {
			return nil, fmt.Errorf("linear cursor %q: %w", cursor, err)
		}
		query = issuesQuery
		vars["after"] = cursor
	}

	var resp issuesResponse
	if err := c.query(ctx, query, vars, &resp); err != nil {
		return nil, err
	}

	page := &domain.FetchPage{}
	var newest time.Time
	for _, issue := range resp.Issues.Nodes {
		content := issue.Title
		if issue.Description != "" {
			content = issue.Title + "\n\n" + issue.Description
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if issue.UpdatedAt.After(newest) {
			newest = issue.UpdatedAt
		}

		title := issue.Title
		if issue.Identifier != "" {
			title = issue.Identifier + " " + issue.Title
		}
		page.Items = append(page.Items, domain.Document{
			ID:          domain.DocumentID(domain.SourceLinear, status.WorkspaceID, issue.ID),
			Source:      domain.SourceLinear,
			WorkspaceID: status.WorkspaceID,
			Title:       title,
			Content:     content,
			URL:         issue.URL,
			Timestamp:   issue.UpdatedAt.UTC(),
			ContentHash: domain.ComputeContentHash(content),
		})
	}
	if len(page.Items) > 0 {
		page.NextCursor = newest.UTC().Format(time.RFC3339Nano)
	}
	return page, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// query runs one GraphQL request with rate limiting and decodes the
// data payload into out.
func (c *Connector) query(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("linear rate limiter: %w", err)
	}

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("linear: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linear: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: linear", domain.ErrRateLimited)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("linear: read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("linear: %w", errUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linear: status %d: %s", resp.StatusCode, body)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("linear: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msg := envelope.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "authentication") {
			return fmt.Errorf("linear: %s: %w", msg, errUnauthorized)
		}
		return fmt.Errorf("linear: graphql: %s", msg)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("linear: decode data: %w", err)
	}
	return nil
}

var errUnauthorized = errors.New("unauthorized")

func isAuthError(err error) bool {
	return errors.Is(err, errUnauthorized)
}
