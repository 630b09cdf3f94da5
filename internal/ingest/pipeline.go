// Package ingest runs the concurrent fetch-and-normalize job that produces
// the corpus.
package ingest

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wikirag/internal/domain"
	"wikirag/internal/logging"
)

// Source authenticates and fetches raw documents.
type Source interface {
	Login(ctx context.Context, username, password string) (domain.AuthToken, error)
	FetchDocument(ctx context.Context, id domain.DocumentID, token domain.AuthToken) (domain.RawDocument, error)
}

// Normalizer turns a raw payload into a record, or reports that there is none.
type Normalizer interface {
	Normalize(raw domain.RawDocument) (domain.CorpusRecord, bool)
}

// Credentials are exchanged for the job's single token.
type Credentials struct {
	Username string
	Password string
}

// ProgressFunc observes the monotonic completed count. It is called from
// worker goroutines and must be safe for concurrent use.
type ProgressFunc func(done, total int)

// Config contains configuration for the pipeline.
type Config struct {
	Workers     int // concurrent fetches (default: runtime.NumCPU() * 3)
	Credentials Credentials
	Progress    ProgressFunc
	Logger      *zap.Logger
}

// Report is the outcome of one ingestion job. Records are in completion
// order, not input order.
type Report struct {
	JobID     string
	Requested int
	Records   []domain.CorpusRecord
	Failed    []domain.DocumentID // fetch failed after retries; safe to re-run
	Dropped   []domain.DocumentID // fetched but produced no record
	Duration  time.Duration
}

// Succeeded returns the number of emitted records.
func (r *Report) Succeeded() int { return len(r.Records) }

// Pipeline coordinates login -> fetch -> normalize across a bounded pool.
type Pipeline struct {
	source     Source
	normalizer Normalizer
	workers    int
	creds      Credentials
	progress   ProgressFunc
	logger     *zap.Logger
}

// DefaultWorkers is a small multiple of the available parallelism.
func DefaultWorkers() int { return runtime.NumCPU() * 3 }

// New creates a pipeline.
func New(source Source, normalizer Normalizer, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	return &Pipeline{
		source:     source,
		normalizer: normalizer,
		workers:    cfg.Workers,
		creds:      cfg.Credentials,
		progress:   cfg.Progress,
		logger:     logging.OrNop(cfg.Logger),
	}
}

// Workers returns the pool size.
func (p *Pipeline) Workers() int { return p.workers }

type outcome struct {
	id     domain.DocumentID
	record domain.CorpusRecord
	ok     bool
	err    error
}

// Run ingests ids. Only a login failure is returned as an error; per-item
// failures are reported in Failed or Dropped. The token is obtained once and
// never refreshed, so if it expires mid-job every later fetch fails.
func (p *Pipeline) Run(ctx context.Context, ids []domain.DocumentID) (*Report, error) {
	start := time.Now()
	report := &Report{JobID: uuid.NewString(), Requested: len(ids)}
	log := p.logger.With(zap.String("job", report.JobID))

	if len(ids) == 0 {
		log.Info("nothing to ingest")
		return report, nil
	}

	token, err := p.source.Login(ctx, p.creds.Username, p.creds.Password)
	if err != nil {
		log.Error("login failed", zap.Error(err))
		return nil, err
	}
	log.Info("ingestion started", zap.Int("requested", len(ids)), zap.Int("workers", p.workers))

	outcomes := make(chan outcome, p.workers)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			switch {
			case o.err != nil:
				report.Failed = append(report.Failed, o.id)
			case !o.ok:
				report.Dropped = append(report.Dropped, o.id)
			default:
				report.Records = append(report.Records, o.record)
			}
		}
	}()

	var done atomic.Int64
	total := len(ids)
	step := progressStep(total)

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, id := range ids {
		g.Go(func() error {
			o := p.process(ctx, log, id, token)
			outcomes <- o
			n := int(done.Add(1))
			if p.progress != nil {
				p.progress(n, total)
			}
			if n%step == 0 || n == total {
				log.Info("progress", zap.Int("done", n), zap.Int("total", total))
			}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-collected

	report.Duration = time.Since(start)
	log.Info("ingestion finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("requested", report.Requested),
		zap.Int("failed", len(report.Failed)),
		zap.Int("dropped", len(report.Dropped)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, log *zap.Logger, id domain.DocumentID, token domain.AuthToken) outcome {
	raw, err := p.source.FetchDocument(ctx, id, token)
	if err != nil {
		log.Warn("fetch failed", zap.String("id", string(id)), zap.Error(err))
		return outcome{id: id, err: err}
	}
	rec, ok := p.normalizer.Normalize(raw)
	if !ok {
		log.Debug("no record produced", zap.String("id", string(id)))
	}
	return outcome{id: id, record: rec, ok: ok}
}

func progressStep(total int) int {
	step := total / 10
	if step < 1 {
		step = 1
	}
	return step
}
