// Package vectorstore holds the distance metrics shared by the vector index
// implementations in its subpackages.
package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"wikirag/internal/domain"
)

// Metric computes a distance between two vectors. Lower is closer.
type Metric string

const (
	// L2 is the squared Euclidean distance.
	L2 Metric = "l2"
	// Cosine is one minus the cosine similarity.
	Cosine Metric = "cosine"
)

// ErrDimensionMismatch is returned when a vector does not match the
// dimension a collection was created with.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ParseMetric resolves a configured metric name. Empty means L2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", L2:
		return L2, nil
	case Cosine:
		return Cosine, nil
	default:
		return "", fmt.Errorf("unknown metric: %q", s)
	}
}

// Distance returns the distance between a and b under m.
func (m Metric) Distance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	switch m {
	case Cosine:
		var dot, na, nb float64
		for i := 0; i < n; i++ {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	default:
		var sum float64
		for i := 0; i < n; i++ {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum
	}
}

// Nearest sorts hits by increasing distance and keeps at most k.
func Nearest(hits []domain.RetrievalHit, k int) []domain.RetrievalHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k >= 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// CheckDimension validates v against an expected dimension (0 accepts any).
func CheckDimension(want int, v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if want > 0 && len(v) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), want)
	}
	return nil
}
