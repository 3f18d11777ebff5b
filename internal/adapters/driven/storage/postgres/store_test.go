package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

func remoteResult(id string, score float64) domain.SearchResult {
	return domain.SearchResult{
		Document: domain.Document{ID: id, Source: domain.SourceSlack, ChannelID: "C1"},
		Score:    score,
	}
}

func TestMergeWithRRF_OrderByRRFDisplaySemantic(t *testing.T) {
	// Semantic ranks [a, b]; keyword ranks [b, c]. b appears in both
	// channels and wins on fused rank, but its displayed score stays
	// the semantic similarity.
	semantic := []domain.SearchResult{remoteResult("a", 0.92), remoteResult("b", 0.88)}
	keyword := []domain.SearchResult{remoteResult("b", 0.05), remoteResult("c", 0.04)}

	merged := mergeWithRRF(semantic, keyword, 60)
	require.Len(t, merged, 3)

	assert.Equal(t, "b", merged[0].ID)
	assert.Equal(t, 0.88, merged[0].Score)
	assert.Equal(t, domain.MatchBoth, merged[0].Match)

	assert.Equal(t, "a", merged[1].ID)
	assert.Equal(t, 0.92, merged[1].Score)
	assert.Equal(t, domain.MatchVector, merged[1].Match)

	assert.Equal(t, "c", merged[2].ID)
	assert.Equal(t, domain.MatchFTS, merged[2].Match)
}

func TestMergeWithRRF_KeywordOnlyPlaceholderScore(t *testing.T) {
	keyword := []domain.SearchResult{remoteResult("k", 0.07)}

	merged := mergeWithRRF(nil, keyword, 60)
	require.Len(t, merged, 1)
	// The keyword channel's ts_rank is not comparable to a similarity,
	// so it is replaced with the fixed placeholder.
	assert.Equal(t, keywordOnlyScore, merged[0].Score)
	assert.Equal(t, domain.MatchFTS, merged[0].Match)
}

func TestMergeWithRRF_EmptyInputs(t *testing.T) {
	assert.Empty(t, mergeWithRRF(nil, nil, 60))

	semantic := []domain.SearchResult{remoteResult("a", 0.9)}
	merged := mergeWithRRF(semantic, nil, 60)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Score)
}

func TestApplyChannels(t *testing.T) {
	results := []domain.SearchResult{remoteResult("a", 0.9), remoteResult("b", 0.8)}
	results[1].ChannelID = "C2"

	t.Run("nil filter keeps everything", func(t *testing.T) {
		assert.Len(t, applyChannels(results, nil), 2)
	})

	t.Run("allow-list drops other channels", func(t *testing.T) {
		kept := applyChannels(results, &domain.ChannelFilter{Source: domain.SourceSlack, Allowed: []string{"C1"}})
		require.Len(t, kept, 1)
		assert.Equal(t, "a", kept[0].ID)
	})
}

func TestSelectResults_FilterBeforeTruncate(t *testing.T) {
	// Three fused hits, limit 2. The top two are outside the allow-list;
	// the matching hit ranked third must still make the final list.
	fused := []domain.SearchResult{
		remoteResult("a", 0.9), remoteResult("b", 0.8), remoteResult("c", 0.7),
	}
	fused[0].ChannelID = "C2"
	fused[1].ChannelID = "C2"

	filter := &domain.ChannelFilter{Source: domain.SourceSlack, Allowed: []string{"C1"}}
	out := selectResults(fused, filter, 2)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)

	t.Run("truncates after filtering", func(t *testing.T) {
		out := selectResults(fused, nil, 2)
		require.Len(t, out, 2)
		assert.Equal(t, "a", out[0].ID)
	})
}

// fakeRows feeds canned row values through the pgx.Rows interface. Scan
// refuses to put a NULL into a bare *time.Time, the same as pgx does.
type fakeRows struct {
	rows [][]any
	idx  int
}

func (f *fakeRows) Next() bool {
	f.idx++
	return f.idx <= len(f.rows)
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.idx-1]
	for i, d := range dest {
		switch d := d.(type) {
		case *string:
			if row[i] != nil {
				*d = row[i].(string)
			}
		case *domain.SourceType:
			*d = row[i].(domain.SourceType)
		case *float64:
			*d = row[i].(float64)
		case *time.Time:
			if row[i] == nil {
				return fmt.Errorf("cannot scan NULL into *time.Time")
			}
			*d = row[i].(time.Time)
		case **time.Time:
			if row[i] == nil {
				*d = nil
			} else {
				ts := row[i].(time.Time)
				*d = &ts
			}
		default:
			return fmt.Errorf("unsupported scan destination %T", d)
		}
	}
	return nil
}

func (f *fakeRows) Close()                                       {}
func (f *fakeRows) Err() error                                   { return nil }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func TestScanResults_NullTimestamp(t *testing.T) {
	when := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{"slack:W1:1", domain.SourceSlack, "W1", "C1", "title", "body", "https://x", when, "hash", 0.9},
		{"notion:W1:p1", domain.SourceNotion, "W1", "", "page", "text", "https://y", nil, "hash2", 0.5},
	}}

	results, err := scanResults(rows, domain.MatchFTS)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, when, results[0].Timestamp)
	// A document without a timestamp must not break the scan.
	assert.True(t, results[1].Timestamp.IsZero())
	assert.Equal(t, domain.MatchFTS, results[1].Match)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}
