// Package gmail fetches message metadata from the Gmail REST API.
package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/recall-labs/recall-cli/internal/core/domain"
	"github.com/recall-labs/recall-cli/internal/core/ports/driven"
)

const (
	// DefaultBaseURL is the Gmail API root for the authenticated user.
	DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// requestsPerSecond stays well under the per-user quota.
	requestsPerSecond = 5

	// maxPageSize is Gmail's maximum for messages.list.
	maxPageSize = 100
)

var _ driven.Connector = (*Connector)(nil)

// Config holds Gmail connector configuration.
type Config struct {
	// AccessToken is an OAuth2 bearer token with gmail.readonly scope
	// (required).
	AccessToken string

	// BaseURL overrides the API root, for tests.
	BaseURL string
}

// Connector fetches mail newer than a Unix-seconds watermark. The
// mailbox is a single partition and the sync cursor is the internal
// date of the newest message seen, in Unix seconds.
type Connector struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	token   string
}

// New creates a Gmail connector.
func New(cfg Config) *Connector {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		baseURL: baseURL,
		token:   cfg.AccessToken,
	}
}

// Source returns the source type this connector serves.
func (c *Connector) Source() domain.SourceType {
	return domain.SourceGmail
}

type profileResponse struct {
	EmailAddress string `json:"emailAddress"`
}

// ConnectionStatus validates the token against the profile endpoint.
// The email address doubles as the workspace ID.
func (c *Connector) ConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error) {
	if c.token == "" {
		return domain.ConnectionStatus{}, nil
	}

	var profile profileResponse
	err := c.get(ctx, "/profile", nil, &profile)
	if err != nil {
		if isAuthStatus(err) {
			return domain.ConnectionStatus{}, nil
		}
		return domain.ConnectionStatus{}, err
	}
	if profile.EmailAddress == "" {
		return domain.ConnectionStatus{}, nil
	}
	return domain.ConnectionStatus{Connected: true, WorkspaceID: profile.EmailAddress}, nil
}

// Partitions returns the single mailbox-wide partition.
func (c *Connector) Partitions(context.Context) ([]domain.Partition, error) {
	return []domain.Partition{{ID: "", Name: "mailbox"}}, nil
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type headerField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type messageResponse struct {
	ID           string `json:"id"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []headerField `json:"headers"`
	} `json:"payload"`
}

// FetchSince lists message IDs newer than the watermark and fetches
// each message's subject and snippet.
func (c *Connector) FetchSince(ctx context.Context, _ string, cursor string, limit int) (*domain.FetchPage, error) {
	status, err := c.ConnectionStatus(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Connected {
		return nil, domain.ErrNotConnected
	}

	var since int64
	if cursor != "" {
		since, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("gmail cursor %q: %w", cursor, err)
		}
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{"maxResults": {strconv.Itoa(limit)}}
	if since > 0 {
		params.Set("q", "after:"+strconv.FormatInt(since, 10))
	}
	var list listResponse
	if err := c.get(ctx, "/messages", params, &list); err != nil {
		return nil, err
	}

	page := &domain.FetchPage{}
	newest := since
	for _, ref := range list.Messages {
		var msg messageResponse
		params := url.Values{
			"format":          {"metadata"},
			"metadataHeaders": {"Subject"},
		}
		if err := c.get(ctx, "/messages/"+ref.ID, params, &msg); err != nil {
			return nil, err
		}

		ts := internalDateTime(msg.InternalDate)
		// The after: query has whole-day granularity, so re-check the
		// watermark per message.
		if since > 0 && !ts.IsZero() && ts.Unix() <= since {
			continue
		}

		subject := header(msg.Payload.Headers, "Subject")
		content := msg.Snippet
		if subject != "" {
			content = subject + "\n\n" + msg.Snippet
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if ts.Unix() > newest {
			newest = ts.Unix()
		}

		page.Items = append(page.Items, domain.Document{
			ID:          domain.DocumentID(domain.SourceGmail, status.WorkspaceID, msg.ID),
			Source:      domain.SourceGmail,
			WorkspaceID: status.WorkspaceID,
			Title:       subject,
			Content:     content,
			Timestamp:   ts,
			ContentHash: domain.ComputeContentHash(content),
		})
	}
	if len(page.Items) > 0 && newest > since {
		page.NextCursor = strconv.FormatInt(newest, 10)
	}
	return page, nil
}

// statusError carries the HTTP status for auth detection.
type statusError struct {
	status int
	path   string
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gmail %s: status %d: %s", e.path, e.status, e.body)
}

func isAuthStatus(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == http.StatusUnauthorized || se.status == http.StatusForbidden
}

// get performs one rate-limited API request.
func (c *Connector) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gmail rate limiter: %w", err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("gmail %s: create request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gmail %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: gmail %s", domain.ErrRateLimited, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, path: path, body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gmail %s: decode response: %w", path, err)
	}
	return nil
}

// header returns the first header value matching name, case-insensitively.
func header(headers []headerField, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// internalDateTime parses Gmail's millisecond internalDate.
func internalDateTime(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
