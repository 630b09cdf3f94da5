package domain

import (
	"context"
	"strings"
)

// DocumentID identifies one source document, e.g. an article title.
type DocumentID string

// AuthToken is a short-lived bearer credential issued by the source.
type AuthToken string

// RawDocument is the undecoded payload returned by the source for one
// identifier. It may be malformed.
type RawDocument []byte

// CorpusRecord is one cleaned article ready for persistence and indexing.
type CorpusRecord struct {
	ID    string
	URL   string
	Title string
	Text  string
}

// RetrievalHit is one nearest-neighbour result. Lower distance is closer.
type RetrievalHit struct {
	ID       string
	Text     string
	Distance float64
}

// ScoredHit pairs a hit with its relevance score in [0,1].
type ScoredHit struct {
	Hit   RetrievalHit
	Score float64
}

// ContextBundle holds the passages selected for a single prompt.
type ContextBundle struct {
	Passages []ScoredHit
}

// Text joins the passage texts with single spaces.
func (b ContextBundle) Text() string {
	texts := make([]string, 0, len(b.Passages))
	for _, p := range b.Passages {
		texts = append(texts, p.Hit.Text)
	}
	return strings.Join(texts, " ")
}

// Empty reports whether no passage passed the cutoff.
func (b ContextBundle) Empty() bool { return len(b.Passages) == 0 }

// Chunk is a passage of a corpus record used for indexing.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Chunker splits records into passages suitable for retrieval indexing.
type Chunker interface {
	Chunk(record CorpusRecord) ([]Chunk, error)
}

// Collection is a named set of vectors with their source texts.
type Collection interface {
	Name() string
	Put(ctx context.Context, id string, vector []float64, text string) error
	// Query returns at most k hits sorted by increasing distance.
	Query(ctx context.Context, vector []float64, k int) ([]RetrievalHit, error)
	Count(ctx context.Context) (int, error)
}

// VectorIndex manages collections. Missing collections yield ErrIndexNotFound.
type VectorIndex interface {
	GetCollection(ctx context.Context, name string) (Collection, error)
	CreateCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	Close() error
}
