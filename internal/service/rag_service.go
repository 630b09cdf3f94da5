// Package service wires retrieval and generation into answers and builds
// the vector index from the corpus.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wikirag/internal/domain"
	"wikirag/internal/logging"
	"wikirag/internal/retrieval"
)

// DefaultTopK is the number of neighbours fetched per question.
const DefaultTopK = 10

const promptTemplate = "Review all of this knowledge and combine it with your existing knowledge about the subject of the prompt, use as much of this knowledge as possible in your response: %s. Respond to this prompt, first give a one sentence summary with 3 bullet points, and then a detailed answer with full context: %s"

// BuildPrompt fills the generation template. context may be empty.
func BuildPrompt(context, prompt string) string {
	return fmt.Sprintf(promptTemplate, context, prompt)
}

// Config configures a RAGService.
type Config struct {
	Collection string
	TopK       int
	Cutoff     float64
	Logger     *zap.Logger
}

// Result is a generated answer together with the passages it was grounded on.
type Result struct {
	Prompt    string
	Answer    string
	Retrieval bool
	Context   domain.ContextBundle
	Elapsed   time.Duration
}

// RAGService answers prompts, optionally grounding them on the vector index.
// Each call is sequential: embed, query, rank, generate.
type RAGService struct {
	index      domain.VectorIndex
	embedder   domain.Embedder
	generator  domain.Generator
	ranker     retrieval.Ranker
	collection string
	topK       int
	logger     *zap.Logger
}

func NewRAGService(index domain.VectorIndex, embedder domain.Embedder, generator domain.Generator, cfg Config) *RAGService {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &RAGService{
		index:      index,
		embedder:   embedder,
		generator:  generator,
		ranker:     retrieval.NewRanker(cfg.Cutoff),
		collection: collection,
		topK:       topK,
		logger:     logging.OrNop(cfg.Logger),
	}
}

// Answer returns the generated text verbatim.
func (s *RAGService) Answer(ctx context.Context, prompt string, useRetrieval bool) (string, error) {
	res, err := s.AnswerDetailed(ctx, prompt, useRetrieval)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// AnswerDetailed is Answer plus the selected passages. A missing collection
// fails with domain.ErrIndexNotFound before any generation happens.
// Generation failures are returned as *domain.GenerationError and not retried.
func (s *RAGService) AnswerDetailed(ctx context.Context, prompt string, useRetrieval bool) (Result, error) {
	start := time.Now()
	res := Result{Prompt: prompt, Retrieval: useRetrieval}
	if useRetrieval {
		bundle, err := s.Retrieve(ctx, prompt)
		if err != nil {
			return res, err
		}
		res.Context = bundle
	}

	out, err := s.generator.Generate(ctx, BuildPrompt(res.Context.Text(), prompt))
	if err != nil {
		var ge *domain.GenerationError
		if !errors.As(err, &ge) {
			err = &domain.GenerationError{Err: err}
		}
		s.logger.Error("generation failed", zap.Error(err))
		return res, err
	}
	res.Answer = out
	res.Elapsed = time.Since(start)
	s.logger.Debug("answered",
		zap.Bool("retrieval", useRetrieval),
		zap.Int("passages", len(res.Context.Passages)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Retrieve embeds prompt, fetches the top-K neighbours and keeps the leading
// passages that pass the relevance cutoff.
func (s *RAGService) Retrieve(ctx context.Context, prompt string) (domain.ContextBundle, error) {
	coll, err := s.index.GetCollection(ctx, s.collection)
	if err != nil {
		return domain.ContextBundle{}, err
	}
	vec, err := s.embedder.Embed(ctx, prompt)
	if err != nil {
		return domain.ContextBundle{}, fmt.Errorf("embed prompt: %w", err)
	}
	hits, err := coll.Query(ctx, vec, s.topK)
	if err != nil {
		return domain.ContextBundle{}, fmt.Errorf("query %q: %w", s.collection, err)
	}
	bundle := s.ranker.Rank(hits)
	for _, p := range bundle.Passages {
		s.logger.Debug("relevant passage", zap.String("id", p.Hit.ID), zap.Float64("similarity", p.Score))
	}
	s.logger.Debug("retrieval", zap.Int("hits", len(hits)), zap.Int("selected", len(bundle.Passages)))
	return bundle, nil
}
