package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func testConnector(t *testing.T, handler http.HandlerFunc) *Connector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{Token: "ntn-test", WorkspaceID: "acme", BaseURL: server.URL})
}

func page(id, title string, edited time.Time) map[string]any {
	return map[string]any{
		"id":               id,
		"url":              "https://notion.so/" + id,
		"last_edited_time": edited.Format(time.RFC3339Nano),
		"properties": map[string]any{
			"Name": map[string]any{
				"type":  "title",
				"title": []map[string]any{{"plain_text": title}},
			},
		},
	}
}

func TestConnector_ConnectionStatus(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/users/me", r.URL.Path)
			assert.Equal(t, "Bearer ntn-test", r.Header.Get("Authorization"))
			assert.Equal(t, apiVersion, r.Header.Get("Notion-Version"))
			w.WriteHeader(http.StatusOK)
		})

		status, err := conn.ConnectionStatus(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.Equal(t, "acme", status.WorkspaceID)
	})

	t.Run("invalid token", func(t *testing.T) {
		conn := testConnector(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		status, err := conn.ConnectionStatus(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Connected)
	})
}

func TestConnector_Partitions(t *testing.T) {
	conn := New(Config{Token: "ntn-test"})
	partitions, err := conn.Partitions(context.Background())
	require.NoError(t, err)
	require.Len(t, partitions, 1)
	assert.Empty(t, partitions[0].ID)
}

func TestConnector_FetchSince(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "descending", req.Sort.Direction)
		assert.Equal(t, "last_edited_time", req.Sort.Timestamp)

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				page("p-new", "Roadmap", now),
				page("p-mid", "Standup notes", now.Add(-time.Hour)),
				page("p-old", "Archive", now.Add(-48*time.Hour)),
			},
			"has_more": false,
		}))
	})

	cursor := now.Add(-24 * time.Hour).Format(time.RFC3339Nano)
	result, err := conn.FetchSince(context.Background(), "", cursor, 100)
	require.NoError(t, err)

	// The page older than the watermark is cut off.
	require.Len(t, result.Items, 2)
	first := result.Items[0]
	assert.Equal(t, "notion:acme:p-new", first.ID)
	assert.Equal(t, domain.SourceNotion, first.Source)
	assert.Equal(t, "Roadmap", first.Title)
	assert.Equal(t, "Roadmap", first.Content)
	assert.Equal(t, "https://notion.so/p-new", first.URL)
	assert.Equal(t, now, first.Timestamp)

	// The new watermark is the newest edit time seen.
	assert.Equal(t, now.Format(time.RFC3339Nano), result.NextCursor)
}

func TestConnector_FetchSinceNothingNew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conn := testConnector(t, func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{page("p-old", "Archive", now.Add(-time.Hour))},
		}))
	})

	result, err := conn.FetchSince(context.Background(), "", now.Format(time.RFC3339Nano), 100)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Empty(t, result.NextCursor)
}

func TestConnector_FetchSinceBadCursor(t *testing.T) {
	conn := New(Config{Token: "ntn-test"})
	_, err := conn.FetchSince(context.Background(), "", "not-a-time", 100)
	assert.Error(t, err)
}
