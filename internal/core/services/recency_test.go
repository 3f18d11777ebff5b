package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func testBooster(now time.Time) *RecencyBooster {
	b := NewRecencyBooster(nil)
	b.now = func() time.Time { return now }
	return b
}

func TestRecencyBooster_Score(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := testBooster(now)

	t.Run("fresh document scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, b.Score(domain.SourceSlack, now), 1e-9)
	})

	t.Run("one half-life scores half", func(t *testing.T) {
		// Slack's half-life is 7 days.
		ts := now.Add(-7 * 24 * time.Hour)
		assert.InDelta(t, 0.5, b.Score(domain.SourceSlack, ts), 1e-9)
	})

	t.Run("two half-lives score a quarter", func(t *testing.T) {
		ts := now.Add(-14 * 24 * time.Hour)
		assert.InDelta(t, 0.25, b.Score(domain.SourceSlack, ts), 1e-9)
	})

	t.Run("missing timestamp scores neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, b.Score(domain.SourceSlack, time.Time{}))
	})

	t.Run("future timestamp clamps to one", func(t *testing.T) {
		ts := now.Add(48 * time.Hour)
		assert.InDelta(t, 1.0, b.Score(domain.SourceSlack, ts), 1e-9)
	})

	t.Run("unknown source uses neutral profile", func(t *testing.T) {
		// Neutral half-life is 14 days.
		ts := now.Add(-14 * 24 * time.Hour)
		assert.InDelta(t, 0.5, b.Score(domain.SourceType("jira"), ts), 1e-9)
	})

	t.Run("decay is monotonic in age", func(t *testing.T) {
		prev := 2.0
		for days := 0; days <= 90; days += 5 {
			s := b.Score(domain.SourceNotion, now.Add(-time.Duration(days)*24*time.Hour))
			assert.Less(t, s, prev, "day %d", days)
			prev = s
		}
	})
}

func TestRecencyBooster_Boost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := testBooster(now)

	t.Run("blends relevance with recency", func(t *testing.T) {
		// Slack weight is 0.35; a missing timestamp contributes a
		// neutral 0.5 recency share.
		got := b.Boost(domain.SourceSlack, 0.8, time.Time{})
		assert.InDelta(t, 0.65*0.8+0.35*0.5, got, 1e-9)
	})

	t.Run("newer beats older at equal relevance", func(t *testing.T) {
		newer := b.Boost(domain.SourceGmail, 0.7, now.Add(-24*time.Hour))
		older := b.Boost(domain.SourceGmail, 0.7, now.Add(-30*24*time.Hour))
		assert.Greater(t, newer, older)
	})

	t.Run("archival sources weigh recency lightly", func(t *testing.T) {
		ts := now.Add(-30 * 24 * time.Hour)
		slack := b.Boost(domain.SourceSlack, 0.8, ts)
		notion := b.Boost(domain.SourceNotion, 0.8, ts)
		// Same age and relevance, but Notion's slow decay and low
		// weight penalise it far less.
		assert.Greater(t, notion, slack)
	})
}

func TestRecencyBooster_Apply(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := testBooster(now)

	old := domain.SearchResult{
		Document: domain.Document{ID: "old", Source: domain.SourceSlack, Timestamp: now.Add(-60 * 24 * time.Hour)},
		Score:    0.80,
	}
	fresh := domain.SearchResult{
		Document: domain.Document{ID: "fresh", Source: domain.SourceSlack, Timestamp: now.Add(-1 * time.Hour)},
		Score:    0.78,
	}

	in := []domain.SearchResult{old, fresh}
	out := b.Apply(in)

	require.Len(t, out, 2)
	// The fresh document overtakes the marginally more relevant stale one.
	assert.Equal(t, "fresh", out[0].ID)
	assert.Equal(t, "old", out[1].ID)

	// Input scores are untouched.
	assert.Equal(t, 0.80, in[0].Score)
	assert.Equal(t, 0.78, in[1].Score)
}

func TestRecencyBooster_CustomProfiles(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewRecencyBooster(map[domain.SourceType]RecencyProfile{
		domain.SourceSlack: {HalfLifeDays: 1, Weight: 1.0},
	})
	b.now = func() time.Time { return now }

	// Weight 1.0 makes the boosted score pure recency.
	got := b.Boost(domain.SourceSlack, 0.9, now.Add(-24*time.Hour))
	assert.InDelta(t, 0.5, got, 1e-9)
}
