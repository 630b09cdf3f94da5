// Package retrieval turns nearest-neighbour distances into relevance scores
// and selects the passages that go into a prompt.
package retrieval

import "wikirag/internal/domain"

// DefaultCutoff keeps passages within 80% of the best match.
const DefaultCutoff = 0.8

// Ranker filters hits by normalized relevance.
type Ranker struct {
	Cutoff float64
}

// NewRanker creates a ranker. A cutoff outside (0,1] falls back to DefaultCutoff.
func NewRanker(cutoff float64) Ranker {
	if cutoff <= 0 || cutoff > 1 {
		cutoff = DefaultCutoff
	}
	return Ranker{Cutoff: cutoff}
}

// Rank scores hits and keeps the leading run at or above the cutoff. Hits
// must already be sorted by increasing distance; they are never re-sorted.
func (r Ranker) Rank(hits []domain.RetrievalHit) domain.ContextBundle {
	return Select(Score(hits), r.Cutoff)
}

// Normalize maps distances to [0,1] with the closest at 1 and the farthest
// at 0. When all distances are equal every score is 1.
func Normalize(distances []float64) []float64 {
	if len(distances) == 0 {
		return nil
	}
	lo, hi := distances[0], distances[0]
	for _, d := range distances[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	scores := make([]float64, len(distances))
	span := hi - lo
	for i, d := range distances {
		if span == 0 {
			scores[i] = 1
			continue
		}
		scores[i] = 1 - (d-lo)/span
	}
	return scores
}

// Score attaches normalized scores to hits, preserving order.
func Score(hits []domain.RetrievalHit) []domain.ScoredHit {
	distances := make([]float64, len(hits))
	for i, h := range hits {
		distances[i] = h.Distance
	}
	scores := Normalize(distances)
	out := make([]domain.ScoredHit, len(hits))
	for i, h := range hits {
		out[i] = domain.ScoredHit{Hit: h, Score: scores[i]}
	}
	return out
}

// Select walks scored in order and stops at the first score below cutoff.
// Later hits are never inspected, even if they would pass.
func Select(scored []domain.ScoredHit, cutoff float64) domain.ContextBundle {
	var bundle domain.ContextBundle
	for _, s := range scored {
		if s.Score < cutoff {
			break
		}
		bundle.Passages = append(bundle.Passages, s)
	}
	return bundle
}
