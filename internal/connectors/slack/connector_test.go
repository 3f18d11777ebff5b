package slack

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
	return New(Config{Token: "xoxb-test", BaseURL: server.URL})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestConnector_ConnectionStatus(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth.test", r.URL.Path)
			assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
			writeJSON(t, w, map[string]any{"ok": true, "team_id": "T123", "team": "acme"})
		})

		status, err := conn.ConnectionStatus(context.Background())
		require.NoError(t, err)
		assert.True(t, status.Connected)
		assert.Equal(t, "T123", status.WorkspaceID)
	})

	t.Run("invalid token", func(t *testing.T) {
		conn := testConnector(t, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(t, w, map[string]any{"ok": false, "error": "invalid_auth"})
		})

		status, err := conn.ConnectionStatus(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Connected)
	})

	t.Run("no token", func(t *testing.T) {
		conn := New(Config{})
		status, err := conn.ConnectionStatus(context.Background())
		require.NoError(t, err)
		assert.False(t, status.Connected)
	})
}

func TestConnector_Partitions(t *testing.T) {
	conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.list", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"ok": true,
			"channels": []map[string]any{
				{"id": "C1", "name": "general", "is_member": true},
				{"id": "C2", "name": "random", "is_member": false},
			},
		})
	})

	partitions, err := conn.Partitions(context.Background())
	require.NoError(t, err)
	// Channels the token is not a member of are skipped.
	require.Len(t, partitions, 1)
	assert.Equal(t, domain.Partition{ID: "C1", Name: "general"}, partitions[0])
}

func TestConnector_FetchSince(t *testing.T) {
	conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth.test":
			writeJSON(t, w, map[string]any{"ok": true, "team_id": "T123"})
		case "/conversations.history":
			assert.Equal(t, "C1", r.URL.Query().Get("channel"))
			assert.Equal(t, "1717240000.000100", r.URL.Query().Get("oldest"))
			writeJSON(t, w, map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"type": "message", "ts": "1717250000.000300", "text": "release shipped", "user": "U1"},
					{"type": "message", "subtype": "channel_join", "ts": "1717245000.000200", "text": "joined"},
					{"type": "message", "ts": "1717244000.000150", "text": "standup at 10am", "user": "U2"},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	page, err := conn.FetchSince(context.Background(), "C1", "1717240000.000100", 100)
	require.NoError(t, err)

	// The join event is filtered; both real messages map to documents.
	require.Len(t, page.Items, 2)
	first := page.Items[0]
	assert.Equal(t, "slack:T123:C1:1717250000.000300", first.ID)
	assert.Equal(t, domain.SourceSlack, first.Source)
	assert.Equal(t, "T123", first.WorkspaceID)
	assert.Equal(t, "C1", first.ChannelID)
	assert.Equal(t, "release shipped", first.Content)
	assert.NotEmpty(t, first.ContentHash)
	assert.Equal(t, time.Unix(1717250000, 300000).UTC().Truncate(time.Millisecond),
		first.Timestamp.Truncate(time.Millisecond))

	// The cursor advances to the newest message timestamp.
	assert.Equal(t, "1717250000.000300", page.NextCursor)
}

func TestConnector_FetchSinceEmptyChannel(t *testing.T) {
	conn := testConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth.test":
			writeJSON(t, w, map[string]any{"ok": true, "team_id": "T123"})
		default:
			writeJSON(t, w, map[string]any{"ok": true, "messages": []map[string]any{}})
		}
	})

	page, err := conn.FetchSince(context.Background(), "C1", "", 100)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	// No new messages, no cursor movement.
	assert.Empty(t, page.NextCursor)
}

func TestSlackTSTime(t *testing.T) {
	ts := slackTSTime("1717250000.000300")
	assert.Equal(t, int64(1717250000), ts.Unix())
	assert.True(t, slackTSLess("1717240000.000100", "1717250000.000300"))
	assert.False(t, slackTSLess("1717250000.000300", "1717240000.000100"))
}
