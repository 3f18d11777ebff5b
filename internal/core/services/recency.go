package services

import (
	"math"
	"sort"
	"time"

	"github.com/recall-labs/recall-cli/internal/core/domain"
)

// RecencyProfile configures the exponential time decay for one source.
type RecencyProfile struct {
	// HalfLifeDays is the age at which the recency score halves.
	HalfLifeDays float64

	// Weight is the share of the final score taken by recency (0..1).
	Weight float64
}

// neutralProfile is used for sources without explicit configuration.
var neutralProfile = RecencyProfile{HalfLifeDays: 14, Weight: 0.3}

// DefaultRecencyProfiles returns the built-in per-source decay settings.
// Fast-moving chat sources decay quickly and weigh recency heavily;
// archival document sources decay slowly and weigh it lightly.
func DefaultRecencyProfiles() map[domain.SourceType]RecencyProfile {
	return map[domain.SourceType]RecencyProfile{
		domain.SourceSlack:  {HalfLifeDays: 7, Weight: 0.35},
		domain.SourceGmail:  {HalfLifeDays: 14, Weight: 0.3},
		domain.SourceLinear: {HalfLifeDays: 21, Weight: 0.25},
		domain.SourceNotion: {HalfLifeDays: 45, Weight: 0.15},
	}
}

// RecencyBooster blends per-source exponential time decay into relevance
// scores. It is a pure scoring component with no stored state.
type RecencyBooster struct {
	profiles map[domain.SourceType]RecencyProfile
	now      func() time.Time
}

// NewRecencyBooster creates a booster with the given profiles.
// A nil map uses DefaultRecencyProfiles.
func NewRecencyBooster(profiles map[domain.SourceType]RecencyProfile) *RecencyBooster {
	if profiles == nil {
		profiles = DefaultRecencyProfiles()
	}
	return &RecencyBooster{
		profiles: profiles,
		now:      time.Now,
	}
}

// profile returns the decay settings for a source, falling back to the
// neutral default pair.
func (b *RecencyBooster) profile(source domain.SourceType) RecencyProfile {
	if p, ok := b.profiles[source]; ok {
		return p
	}
	return neutralProfile
}

// Score computes the decay factor for a document timestamp:
// 1.0 at age zero, 0.5 at one half-life, 0.25 at two. A zero timestamp
// scores a neutral 0.5; future timestamps are clamped to age zero.
func (b *RecencyBooster) Score(source domain.SourceType, timestamp time.Time) float64 {
	if timestamp.IsZero() {
		return 0.5
	}

	ageDays := b.now().Sub(timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0 // clock skew
	}

	half := b.profile(source).HalfLifeDays
	return math.Exp(-math.Ln2 * ageDays / half)
}

// Boost blends a relevance score with the recency score:
// (1-weight)*relevance + weight*recency. Monotonic in time: at equal
// relevance, older documents of a source never outscore newer ones.
func (b *RecencyBooster) Boost(source domain.SourceType, relevance float64, timestamp time.Time) float64 {
	w := b.profile(source).Weight
	return (1-w)*relevance + w*b.Score(source, timestamp)
}

// Apply returns a copy of results with boosted scores, sorted descending.
// The sort is stable so equal scores keep their incoming order.
func (b *RecencyBooster) Apply(results []domain.SearchResult) []domain.SearchResult {
	boosted := make([]domain.SearchResult, len(results))
	copy(boosted, results)
	for i := range boosted {
		boosted[i].Score = b.Boost(boosted[i].Source, boosted[i].Score, boosted[i].Timestamp)
	}
	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}
