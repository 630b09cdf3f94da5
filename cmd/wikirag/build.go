package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"wikirag/internal/chunker"
	"wikirag/internal/config"
	"wikirag/internal/corpus"
	"wikirag/internal/domain"
	ollamaemb "wikirag/internal/embedding/ollama"
	"wikirag/internal/embedding/openai"
	"wikirag/internal/embedding/tfidf"
	ollamagen "wikirag/internal/generation/ollama"
	openaigen "wikirag/internal/generation/openai"
	"wikirag/internal/ingest"
	"wikirag/internal/source"
	"wikirag/internal/vectorstore"
	"wikirag/internal/vectorstore/memory"
	"wikirag/internal/vectorstore/qdrant"
	"wikirag/internal/vectorstore/sqlite"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildSource(cfg config.SourceConfig) *source.Client {
	return source.NewClient(source.Config{
		AuthURL:           cfg.AuthURL,
		APIURL:            cfg.APIURL,
		Project:           cfg.Project,
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         time.Duration(cfg.BackoffMillis) * time.Millisecond,
		AuthTimeout:       seconds(cfg.AuthTimeoutSecs),
		FetchTimeout:      seconds(cfg.FetchTimeoutSecs),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger.Named("source"),
	})
}

func credentials(cfg config.SourceConfig) (ingest.Credentials, error) {
	c := ingest.Credentials{Username: os.Getenv(cfg.UsernameEnv), Password: os.Getenv(cfg.PasswordEnv)}
	if c.Username == "" || c.Password == "" {
		return c, fmt.Errorf("missing credentials: set %s and %s", cfg.UsernameEnv, cfg.PasswordEnv)
	}
	return c, nil
}

func workers(cfg config.IngestConfig) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.NumCPU() * cfg.WorkerMultiplier
}

// buildEmbedder assembles the configured embedder. TF-IDF is prepared from
// the corpus file so query vectors line up with the indexed ones.
func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "ollama":
		o := cfg.Embedder.Ollama
		return ollamaemb.NewEmbedder(ollamaemb.Config{
			BaseURL: o.BaseURL,
			Model:   o.Model,
			Timeout: seconds(o.TimeoutSecs),
		}), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   seconds(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "tfidf":
		return tfidf.NewEmbedder(0), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

// prepareForQuery trains embedders that learn from the corpus. Remote
// embedders are left alone so querying never needs the CSV.
func prepareForQuery(cfg *config.AppConfig, emb domain.Embedder) error {
	if cfg.Embedder.Type != "tfidf" {
		return nil
	}
	records, err := corpus.Load(cfg.Ingest.OutputFile)
	if err != nil {
		return fmt.Errorf("tfidf embedder needs the corpus: %w", err)
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	return emb.Prepare(texts)
}

func buildGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "ollama":
		o := cfg.Generator.Ollama
		return ollamagen.NewGenerator(ollamagen.Config{
			BaseURL: o.BaseURL,
			Model:   o.Model,
			Timeout: seconds(o.TimeoutSecs),
		}), nil
	case "openai":
		o := cfg.Generator.OpenAI
		gen, err := openaigen.NewGenerator(openaigen.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   seconds(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}

func buildChunker(cfg config.ChunkerConfig) (domain.Chunker, error) {
	switch cfg.Type {
	case "none", "":
		return chunker.Whole{}, nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}

func buildIndex(cfg config.VectorStoreConfig) (domain.VectorIndex, error) {
	metric, err := vectorstore.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Dir, metric)
	case "memory":
		logger.Warn("memory vector store does not persist between commands")
		return memory.NewIndex(metric), nil
	case "qdrant":
		q := cfg.Qdrant
		return qdrant.NewIndex(qdrant.Config{
			URL:     q.URL,
			APIKey:  os.Getenv(q.APIKeyEnv),
			Metric:  metric,
			Timeout: seconds(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
