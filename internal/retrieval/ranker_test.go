package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		distances []float64
		want      []float64
	}{
		{"spread", []float64{0.1, 0.5, 0.9}, []float64{1.0, 0.5, 0.0}},
		{"all equal", []float64{0.3, 0.3, 0.3}, []float64{1.0, 1.0, 1.0}},
		{"single", []float64{42}, []float64{1.0}},
		{"unsorted input keeps positions", []float64{0.9, 0.1}, []float64{0.0, 1.0}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.distances)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func scored(scores ...float64) []domain.ScoredHit {
	out := make([]domain.ScoredHit, len(scores))
	for i, s := range scores {
		out[i] = domain.ScoredHit{Hit: domain.RetrievalHit{ID: string(rune('a' + i)), Text: string(rune('A' + i))}, Score: s}
	}
	return out
}

func TestSelect_StopsAtFirstScoreBelowCutoff(t *testing.T) {
	bundle := Select(scored(0.95, 0.85, 0.6, 0.99), 0.8)

	require.Len(t, bundle.Passages, 2)
	assert.Equal(t, "a", bundle.Passages[0].Hit.ID)
	assert.Equal(t, "b", bundle.Passages[1].Hit.ID)
	assert.Equal(t, "A B", bundle.Text())
}

func TestSelect_ScoreEqualToCutoffPasses(t *testing.T) {
	bundle := Select(scored(1, 0.8), 0.8)
	assert.Len(t, bundle.Passages, 2)
}

func TestSelect_FirstBelowCutoffGivesEmptyBundle(t *testing.T) {
	bundle := Select(scored(0.5, 0.99), 0.8)
	assert.True(t, bundle.Empty())
	assert.Equal(t, "", bundle.Text())
}

func TestRank_NoHits(t *testing.T) {
	bundle := NewRanker(0.8).Rank(nil)
	assert.True(t, bundle.Empty())
}

func TestRank_FromDistances(t *testing.T) {
	hits := []domain.RetrievalHit{
		{ID: "1", Text: "closest", Distance: 100},
		{ID: "2", Text: "close", Distance: 110},
		{ID: "3", Text: "far", Distance: 160},
		{ID: "4", Text: "farthest", Distance: 200},
	}
	bundle := NewRanker(0.8).Rank(hits)

	require.Len(t, bundle.Passages, 2)
	assert.InDelta(t, 1.0, bundle.Passages[0].Score, 1e-9)
	assert.InDelta(t, 0.9, bundle.Passages[1].Score, 1e-9)
	assert.Equal(t, "closest close", bundle.Text())
}

func TestRank_EqualDistancesKeepsAll(t *testing.T) {
	hits := []domain.RetrievalHit{{Text: "x", Distance: 0.3}, {Text: "y", Distance: 0.3}}
	assert.Equal(t, "x y", NewRanker(0.8).Rank(hits).Text())
}

func TestNewRanker_DefaultCutoff(t *testing.T) {
	assert.InDelta(t, DefaultCutoff, NewRanker(0).Cutoff, 1e-9)
	assert.InDelta(t, DefaultCutoff, NewRanker(1.5).Cutoff, 1e-9)
	assert.InDelta(t, 0.5, NewRanker(0.5).Cutoff, 1e-9)
}
