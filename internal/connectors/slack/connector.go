// Package slack fetches messages from the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
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
	// DefaultBaseURL is the Slack Web API root.
	DefaultBaseURL = "https://slack.com/api"

	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// requestsPerSecond respects Slack's tier-3 method limits.
	requestsPerSecond = 0.8

	// maxPageSize is Slack's maximum for conversations.history.
	maxPageSize = 200
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Config holds Slack connector configuration.
type Config struct {
	// Token is the bot or user token (required).
	Token string

	// BaseURL overrides the API root, for tests.
	BaseURL string
}

// Connector fetches messages channel by channel. The sync cursor for a
// channel is the Slack timestamp of the newest message seen, which
// conversations.history accepts back as its oldest parameter.
type Connector struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	token   string
}

// New creates a Slack connector.
func New(cfg Config) *Connector {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		baseURL: baseURL,
		token:   cfg.Token,
	}
}

// Source returns the source type this connector serves.
func (c *Connector) Source() domain.SourceType {
	return domain.SourceSlack
}

type authTestResponse struct {
	apiResponse
	TeamID string `json:"team_id"`
	Team   string `json:"team"`
}

// ConnectionStatus validates the token via auth.test and reports the
// workspace (team) it belongs to.
func (c *Connector) ConnectionStatus(ctx context.Context) (domain.ConnectionStatus, error) {
	if c.token == "" {
		return domain.ConnectionStatus{}, nil
	}

	var resp authTestResponse
	if err := c.call(ctx, "auth.test", nil, &resp); err != nil {
		return domain.ConnectionStatus{}, err
	}
	if !resp.OK {
		// An invalid token is "not connected", not an error.
		return domain.ConnectionStatus{}, nil
	}
	return domain.ConnectionStatus{Connected: true, WorkspaceID: resp.TeamID}, nil
}

type conversationsListResponse struct {
	apiResponse
	Channels []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		IsMember bool   `json:"is_member"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// Partitions lists the channels the token is a member of. One channel
// is one sync partition.
func (c *Connector) Partitions(ctx context.Context) ([]domain.Partition, error) {
	var partitions []domain.Partition
	pageCursor := ""
	for {
		params := url.Values{
			"types": {"public_channel,private_channel"},
			"limit": {"200"},
		}
		if pageCursor != "" {
			params.Set("cursor", pageCursor)
		}

		var resp conversationsListResponse
		if err := c.call(ctx, "conversations.list", params, &resp); err != nil {
			return nil, err
		}
		if !resp.OK {
			return nil, fmt.Errorf("slack conversations.list: %s", resp.Error)
		}

		for _, ch := range resp.Channels {
			if !ch.IsMember {
				continue
			}
			partitions = append(partitions, domain.Partition{ID: ch.ID, Name: ch.Name})
		}

		pageCursor = resp.ResponseMetadata.NextCursor
		if pageCursor == "" {
			return partitions, nil
		}
	}
}

type historyResponse struct {
	apiResponse
	Messages []struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		TS      string `json:"ts"`
		Text    string `json:"text"`
		User    string `json:"user"`
	} `json:"messages"`
}

// FetchSince returns messages strictly newer than the cursor timestamp
// for one channel. The next cursor is the newest timestamp in the page.
func (c *Connector) FetchSince(ctx context.Context, partitionID, cursor string, limit int) (*domain.FetchPage, error) {
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
	params := url.Values{
		"channel": {partitionID},
		"limit":   {strconv.Itoa(limit)},
	}
	if cursor != "" {
		params.Set("oldest", cursor)
	}

	var resp historyResponse
	if err := c.call(ctx, "conversations.history", params, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("slack conversations.history: %s", resp.Error)
	}

	page := &domain.FetchPage{}
	newest := cursor
	for _, msg := range resp.Messages {
		if msg.Type != "message" || msg.Subtype != "" {
			continue // joins, topic changes and other noise
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		if newest == "" || slackTSLess(newest, msg.TS) {
			newest = msg.TS
		}

		content := msg.Text
		page.Items = append(page.Items, domain.Document{
			ID:          domain.DocumentID(domain.SourceSlack, status.WorkspaceID, partitionID+":"+msg.TS),
			Source:      domain.SourceSlack,
			WorkspaceID: status.WorkspaceID,
			ChannelID:   partitionID,
			Content:     content,
			Timestamp:   slackTSTime(msg.TS),
			ContentHash: domain.ComputeContentHash(content),
		})
	}
	if len(page.Items) > 0 {
		page.NextCursor = newest
	}
	return page, nil
}

// call performs one Web API request with rate limiting.
func (c *Connector) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack rate limiter: %w", err)
	}

	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("slack %s: create request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: slack %s", domain.ErrRateLimited, method)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("slack %s: read response: %w", method, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("slack %s: decode response: %w", method, err)
	}
	return nil
}

// apiResponse is the envelope every Web API method shares.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// slackTSTime converts a Slack "seconds.micros" timestamp to time.Time.
func slackTSTime(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// slackTSLess compares two Slack timestamps numerically.
func slackTSLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
