package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wikirag/internal/chunker"
	"wikirag/internal/domain"
	"wikirag/internal/logging"
)

// DefaultCollection is the collection queried and rebuilt by default.
const DefaultCollection = "docs"

// IndexReport summarises one indexing run.
type IndexReport struct {
	Records  int
	Passages int
	Duration time.Duration
}

// Indexer rebuilds a collection from corpus records.
type Indexer struct {
	index      domain.VectorIndex
	embedder   domain.Embedder
	chunker    domain.Chunker
	collection string
	logger     *zap.Logger
}

// NewIndexer creates an indexer. A nil chunker indexes whole records.
func NewIndexer(index domain.VectorIndex, embedder domain.Embedder, ch domain.Chunker, collection string, logger *zap.Logger) *Indexer {
	if ch == nil {
		ch = chunker.Whole{}
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &Indexer{index: index, embedder: embedder, chunker: ch, collection: collection, logger: logging.OrNop(logger)}
}

// Index drops and recreates the collection, then embeds and stores every
// passage. Any embed or put failure aborts the run and deletes the partly
// built collection, so queries fail with ErrIndexNotFound instead of
// answering from an incomplete corpus.
func (ix *Indexer) Index(ctx context.Context, records []domain.CorpusRecord) (rep IndexReport, err error) {
	start := time.Now()
	var chunks []domain.Chunk
	for _, r := range records {
		cs, err := ix.chunker.Chunk(r)
		if err != nil {
			return IndexReport{}, fmt.Errorf("chunk %q: %w", r.ID, err)
		}
		chunks = append(chunks, cs...)
	}
	if len(chunks) == 0 {
		return IndexReport{}, errors.New("nothing to index: corpus has no text")
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	if err := ix.embedder.Prepare(texts); err != nil {
		return IndexReport{}, fmt.Errorf("prepare embedder: %w", err)
	}

	existed, err := ix.Clear(ctx)
	if err != nil {
		return IndexReport{}, err
	}
	if existed {
		ix.logger.Info("deleted existing collection", zap.String("collection", ix.collection))
	}
	coll, err := ix.index.CreateCollection(ctx, ix.collection)
	if err != nil {
		return IndexReport{}, err
	}
	defer func() {
		if err == nil {
			return
		}
		// The caller's ctx may be the reason we failed.
		if _, cerr := ix.Clear(context.WithoutCancel(ctx)); cerr != nil {
			ix.logger.Warn("could not remove partial collection", zap.String("collection", ix.collection), zap.Error(cerr))
			return
		}
		ix.logger.Warn("removed partial collection", zap.String("collection", ix.collection))
	}()

	ix.logger.Info("indexing started",
		zap.String("collection", ix.collection),
		zap.String("embedder", ix.embedder.Name()),
		zap.Int("records", len(records)),
		zap.Int("passages", len(chunks)))
	step := len(chunks) / 10
	if step == 0 {
		step = 1
	}
	for i, ch := range chunks {
		vec, err := ix.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return IndexReport{}, fmt.Errorf("embed %q: %w", ch.ChunkID, err)
		}
		if err := coll.Put(ctx, ch.ChunkID, vec, ch.Text); err != nil {
			return IndexReport{}, fmt.Errorf("put %q: %w", ch.ChunkID, err)
		}
		if (i+1)%step == 0 {
			ix.logger.Info("progress", zap.Int("done", i+1), zap.Int("total", len(chunks)))
		}
	}

	rep = IndexReport{Records: len(records), Passages: len(chunks), Duration: time.Since(start)}
	ix.logger.Info("indexing finished", zap.Int("passages", rep.Passages), zap.Duration("elapsed", rep.Duration))
	return rep, nil
}

// Clear deletes the collection and reports whether it existed.
func (ix *Indexer) Clear(ctx context.Context) (bool, error) {
	err := ix.index.DeleteCollection(ctx, ix.collection)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrIndexNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("delete collection %q: %w", ix.collection, err)
	}
}
