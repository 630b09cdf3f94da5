package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
	"wikirag/internal/normalizer"
)

var _ Normalizer = (*normalizer.Normalizer)(nil)

// fakeSource serves a one-section article per identifier.
type fakeSource struct {
	mu        sync.Mutex
	logins    int32
	fetches   int32
	tokens    map[domain.AuthToken]int
	loginErr  error
	failing   map[domain.DocumentID]bool
	malformed map[domain.DocumentID]bool
	// expireAfter rejects the token once this many fetches were served (0 = never).
	expireAfter int32
	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func (f *fakeSource) Login(ctx context.Context, username, password string) (domain.AuthToken, error) {
	atomic.AddInt32(&f.logins, 1)
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return domain.AuthToken("token-" + username), nil
}

func (f *fakeSource) FetchDocument(ctx context.Context, id domain.DocumentID, token domain.AuthToken) (domain.RawDocument, error) {
	n := atomic.AddInt32(&f.fetches, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxInFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxInFlight, prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	if f.tokens == nil {
		f.tokens = make(map[domain.AuthToken]int)
	}
	f.tokens[token]++
	f.mu.Unlock()

	if f.expireAfter > 0 && n > f.expireAfter {
		return nil, &domain.FetchError{ID: id, Attempts: 1, StatusCode: 401, Err: errors.New("token expired")}
	}
	if f.failing[id] {
		return nil, &domain.FetchError{ID: id, Attempts: 5, StatusCode: 503, Err: errors.New("unavailable")}
	}
	if f.malformed[id] {
		return domain.RawDocument(`{"message":"not found"}`), nil
	}
	raw := fmt.Sprintf(`[{"identifier":%q,"url":"https://example.test/%s","name":%q,"article_sections":[{"name":"Intro","has_parts":[{"value":"About %s."}]}]}]`, id, id, id, id)
	return domain.RawDocument(raw), nil
}

func ids(n int) []domain.DocumentID {
	out := make([]domain.DocumentID, n)
	for i := range out {
		out[i] = domain.DocumentID(fmt.Sprintf("Title %02d", i))
	}
	return out
}

func recordIDs(recs []domain.CorpusRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

func newPipeline(src Source, workers int) *Pipeline {
	return New(src, normalizer.New(nil), Config{Workers: workers, Credentials: Credentials{Username: "u", Password: "p"}})
}

func TestRun_NoIdentifiersMakesNoCalls(t *testing.T) {
	src := &fakeSource{}
	report, err := newPipeline(src, 4).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, report.Records)
	assert.Equal(t, 0, report.Requested)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.logins))
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.fetches))
}

func TestRun_FailureIsolation(t *testing.T) {
	all := ids(10)
	src := &fakeSource{failing: map[domain.DocumentID]bool{all[1]: true, all[4]: true, all[8]: true}}

	report, err := newPipeline(src, 3).Run(context.Background(), all)
	require.NoError(t, err)

	assert.Len(t, report.Records, 7)
	assert.Equal(t, 7, report.Succeeded())
	assert.Equal(t, 10, report.Requested)
	assert.ElementsMatch(t, []domain.DocumentID{all[1], all[4], all[8]}, report.Failed)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, int32(10), atomic.LoadInt32(&src.fetches))
}

func TestRun_LoginFailureAbortsJob(t *testing.T) {
	src := &fakeSource{loginErr: &domain.AuthError{StatusCode: 401, Err: errors.New("denied")}}

	report, err := newPipeline(src, 2).Run(context.Background(), ids(5))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.fetches))
}

func TestRun_SingleSharedToken(t *testing.T) {
	src := &fakeSource{}
	_, err := newPipeline(src, 4).Run(context.Background(), ids(20))
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.logins))
	assert.Equal(t, map[domain.AuthToken]int{"token-u": 20}, src.tokens)
}

func TestRun_AtMostOnceAndStableMembership(t *testing.T) {
	all := ids(25)
	src := &fakeSource{malformed: map[domain.DocumentID]bool{all[3]: true}}
	p := newPipeline(src, 5)

	first, err := p.Run(context.Background(), all)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), all)
	require.NoError(t, err)

	got := recordIDs(first.Records)
	seen := make(map[string]bool)
	for _, id := range got {
		assert.False(t, seen[id], "duplicate record %s", id)
		seen[id] = true
	}
	assert.Len(t, got, 24)
	assert.Equal(t, got, recordIDs(second.Records))
	assert.Equal(t, []domain.DocumentID{all[3]}, first.Dropped)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	src := &fakeSource{delay: 5 * time.Millisecond}
	_, err := newPipeline(src, 3).Run(context.Background(), ids(30))
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&src.maxInFlight), int32(3))
	assert.Greater(t, atomic.LoadInt32(&src.maxInFlight), int32(0))
}

// A token that expires mid-job is not renewed: later fetches fail and are
// reported individually while the job itself succeeds.
func TestRun_ExpiredTokenDegradesSilently(t *testing.T) {
	src := &fakeSource{expireAfter: 4}
	report, err := newPipeline(src, 1).Run(context.Background(), ids(10))
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&src.logins))
	assert.Len(t, report.Records, 4)
	assert.Len(t, report.Failed, 6)
}

func TestRun_ReportsProgress(t *testing.T) {
	var calls, last atomic.Int64
	src := &fakeSource{}
	p := New(src, normalizer.New(nil), Config{
		Workers: 4,
		Progress: func(done, total int) {
			calls.Add(1)
			assert.Equal(t, 12, total)
			for {
				prev := last.Load()
				if int64(done) <= prev || last.CompareAndSwap(prev, int64(done)) {
					break
				}
			}
		},
	})

	_, err := p.Run(context.Background(), ids(12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), calls.Load())
	assert.Equal(t, int64(12), last.Load())
}

func TestNew_DefaultWorkers(t *testing.T) {
	p := New(&fakeSource{}, normalizer.New(nil), Config{})
	assert.Equal(t, DefaultWorkers(), p.Workers())
	assert.Greater(t, p.Workers(), 0)
}

func TestRun_RecordsCarryNormalizedText(t *testing.T) {
	report, err := newPipeline(&fakeSource{}, 2).Run(context.Background(), []domain.DocumentID{"Go"})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, domain.CorpusRecord{
		ID:    "Go",
		URL:   "https://example.test/Go",
		Title: "Go",
		Text:  "Intro. About Go.",
	}, report.Records[0])
	assert.NotEmpty(t, report.JobID)
}
