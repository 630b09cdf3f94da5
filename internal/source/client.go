// Package source talks to the authenticated structured-contents API that
// serves raw articles.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wikirag/internal/domain"
	"wikirag/internal/logging"
)

// Default configuration values.
const (
	DefaultAuthURL      = "https://auth.enterprise.wikimedia.com/v1/login"
	DefaultAPIURL       = "https://api.enterprise.wikimedia.com/v2/structured-contents"
	DefaultProject      = "enwiki"
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 100 * time.Millisecond
	DefaultAuthTimeout  = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second

	maxRetryDelay = 5 * time.Second
)

// articleFields are the structured-contents fields the normalizer reads.
var articleFields = []string{"identifier", "url", "name", "article_sections"}

// Config configures the client. Zero values fall back to the defaults above.
type Config struct {
	AuthURL      string
	APIURL       string
	Project      string
	MaxAttempts  int
	BaseDelay    time.Duration
	AuthTimeout  time.Duration
	FetchTimeout time.Duration

	// RequestsPerSecond throttles every attempt made through this client.
	// Zero disables throttling.
	RequestsPerSecond float64

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is a retrying HTTP client for login and article fetches. One client
// is constructed per ingestion job and shared by all of its workers.
type Client struct {
	authURL      string
	apiURL       string
	project      string
	maxAttempts  int
	baseDelay    time.Duration
	authTimeout  time.Duration
	fetchTimeout time.Duration
	limiter      *rate.Limiter
	http         *http.Client
	logger       *zap.Logger
}

// NewClient creates a client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Project == "" {
		cfg.Project = DefaultProject
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultAuthTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	c := &Client{
		authURL:      cfg.AuthURL,
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		project:      cfg.Project,
		maxAttempts:  cfg.MaxAttempts,
		baseDelay:    cfg.BaseDelay,
		authTimeout:  cfg.AuthTimeout,
		fetchTimeout: cfg.FetchTimeout,
		http:         cfg.HTTPClient,
		logger:       logging.OrNop(cfg.Logger),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (domain.AuthToken, error) {
	payload, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return "", &domain.AuthError{Err: fmt.Errorf("marshal request: %w", err)}
	}
	res := c.do(ctx, c.authTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if res.err != nil {
		return "", &domain.AuthError{StatusCode: res.status, Err: res.err}
	}
	var out loginResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return "", &domain.AuthError{StatusCode: res.status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.AccessToken == "" {
		return "", &domain.AuthError{StatusCode: res.status, Err: errors.New("response carried no access token")}
	}
	c.logger.Debug("login succeeded", zap.Int("attempts", res.attempts))
	return domain.AuthToken(out.AccessToken), nil
}

type fetchFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type fetchRequest struct {
	Fields  []string      `json:"fields"`
	Filters []fetchFilter `json:"filters"`
}

// FetchDocument retrieves the raw structured content for one title.
func (c *Client) FetchDocument(ctx context.Context, id domain.DocumentID, token domain.AuthToken) (domain.RawDocument, error) {
	payload, err := json.Marshal(fetchRequest{
		Fields:  articleFields,
		Filters: []fetchFilter{{Field: "is_part_of.identifier", Value: c.project}},
	})
	if err != nil {
		return nil, &domain.FetchError{ID: id, Err: fmt.Errorf("marshal request: %w", err)}
	}
	endpoint := c.ArticleURL(id)
	res := c.do(ctx, c.fetchTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+string(token))
		return req, nil
	})
	if res.err != nil {
		return nil, &domain.FetchError{ID: id, Attempts: res.attempts, StatusCode: res.status, Err: res.err}
	}
	return domain.RawDocument(res.body), nil
}

// ArticleURL returns the endpoint for a title. Spaces become underscores.
func (c *Client) ArticleURL(id domain.DocumentID) string {
	// "/" is sent as a literal separator; the rest of each segment is escaped.
	segments := strings.Split(strings.ReplaceAll(string(id), " ", "_"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return c.apiURL + "/" + strings.Join(segments, "/")
}

type result struct {
	body     []byte
	status   int
	attempts int
	err      error
}

// do runs build+send up to maxAttempts times. Transport errors, attempt
// timeouts and transient statuses are retried; other statuses are final.
func (c *Client) do(ctx context.Context, timeout time.Duration, build func(ctx context.Context) (*http.Request, error)) result {
	var last result
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		last = c.attempt(ctx, timeout, build)
		last.attempts = attempt
		if last.err == nil {
			return last
		}
		if !last.retryable() || ctx.Err() != nil {
			return last
		}
		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("retrying request",
			zap.Int("attempt", attempt),
			zap.Int("status", last.status),
			zap.Error(last.err))
		if err := sleep(ctx, retryDelay(c.baseDelay, attempt)); err != nil {
			last.err = err
			return last
		}
	}
	return last
}

func (c *Client) attempt(ctx context.Context, timeout time.Duration, build func(ctx context.Context) (*http.Request, error)) result {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return result{err: err}
		}
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(actx)
	if err != nil {
		return result{err: fmt.Errorf("create request: %w", err)}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return result{err: transient{fmt.Errorf("send request: %w", err)}}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{status: resp.StatusCode, err: transient{fmt.Errorf("read response: %w", err)}}
	}
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(body))
		if retryableStatus(resp.StatusCode) {
			err = transient{err}
		}
		return result{status: resp.StatusCode, err: err}
	}
	return result{body: body, status: resp.StatusCode}
}

func (r result) retryable() bool {
	var t transient
	return errors.As(r.err, &t)
}

// transient marks an attempt failure worth retrying.
type transient struct{ err error }

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay grows exponentially from base and is capped at 5s.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
