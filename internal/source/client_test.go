package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func newTestClient(srv *httptest.Server, mod func(*Config)) *Client {
	cfg := Config{
		AuthURL:      srv.URL + "/v1/login",
		APIURL:       srv.URL + "/v2/structured-contents",
		BaseDelay:    time.Millisecond,
		AuthTimeout:  time.Second,
		FetchTimeout: time.Second,
	}
	if mod != nil {
		mod(&cfg)
	}
	return NewClient(cfg)
}

func TestLogin_ReturnsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/login", r.URL.Path)
		var body loginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body.Username)
		assert.Equal(t, "secret", body.Password)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	}))
	defer srv.Close()

	token, err := newTestClient(srv, nil).Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthToken("tok-123"), token)
}

func TestLogin_RejectedCredentialsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuth))

	var authErr *domain.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLogin_EmptyTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).Login(context.Background(), "u", "p")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestLogin_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := newTestClient(srv, func(c *Config) { c.MaxAttempts = 2 }).Login(context.Background(), "u", "p")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestFetchDocument_SendsBearerAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/structured-contents/Albert_Einstein", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body fetchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"identifier", "url", "name", "article_sections"}, body.Fields)
		assert.Equal(t, []fetchFilter{{Field: "is_part_of.identifier", Value: "enwiki"}}, body.Filters)
		_, _ = w.Write([]byte(`[{"identifier":1}]`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv, nil).FetchDocument(context.Background(), "Albert Einstein", "tok")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"identifier":1}]`, string(raw))
}

func TestFetchDocument_RetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv, nil).FetchDocument(context.Background(), "X", "tok")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDocument_ExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchDocument(context.Background(), "X", "tok")
	require.Error(t, err)

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, domain.DocumentID("X"), fetchErr.ID)
	assert.Equal(t, DefaultMaxAttempts, fetchErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(&calls))
	assert.ErrorIs(t, err, domain.ErrFetch)
}

func TestFetchDocument_PermanentStatusIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchDocument(context.Background(), "X", "stale")
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchDocument_AttemptTimeoutIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, func(c *Config) {
		c.FetchTimeout = 20 * time.Millisecond
		c.MaxAttempts = 2
	})
	_, err := c.FetchDocument(context.Background(), "Slow", "tok")

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 2, fetchErr.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchDocument_StopsWhenCallerCancels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv, nil).FetchDocument(ctx, "X", "tok")

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 1, fetchErr.Attempts)
}

func TestArticleURL_EscapesTitle(t *testing.T) {
	c := NewClient(Config{APIURL: "https://example.test/v2/structured-contents/"})
	assert.Equal(t, "https://example.test/v2/structured-contents/Albert_Einstein", c.ArticleURL("Albert Einstein"))
	assert.Equal(t, "https://example.test/v2/structured-contents/AC/DC", c.ArticleURL("AC/DC"))
	assert.Equal(t, "https://example.test/v2/structured-contents/Who%3F_50%25", c.ArticleURL("Who? 50%"))
}

func TestFetchDocument_TitleWithSlash(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil).FetchDocument(context.Background(), "AC/DC", "tok")
	require.NoError(t, err)
	assert.Equal(t, "/v2/structured-contents/AC/DC", <-paths)
}

func TestRetryDelay(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, retryDelay(base, 1))
	assert.Equal(t, 200*time.Millisecond, retryDelay(base, 2))
	assert.Equal(t, 800*time.Millisecond, retryDelay(base, 4))
	assert.Equal(t, maxRetryDelay, retryDelay(base, 20))
}

func TestRateLimiterIsConfigured(t *testing.T) {
	assert.Nil(t, NewClient(Config{}).limiter)
	assert.NotNil(t, NewClient(Config{RequestsPerSecond: 2}).limiter)
}
