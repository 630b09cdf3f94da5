package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"wikirag/internal/domain"
	"wikirag/internal/vectorstore"
)

// Index is a minimal REST client to Qdrant.
// Qdrant needs the vector size up front, so a collection created through
// CreateCollection is only materialised on its first Put.
type Index struct {
	url    string
	apiKey string
	metric vectorstore.Metric
	client *http.Client

	mu      sync.Mutex
	pending map[string]bool
}

type Config struct {
	URL     string
	APIKey  string
	Metric  vectorstore.Metric
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
}

func NewIndex(cfg Config) *Index {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	metric := cfg.Metric
	if metric == "" {
		metric = vectorstore.L2
	}
	return &Index{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		metric:  metric,
		client:  client,
		pending: make(map[string]bool),
	}
}

// errNotFound marks a 404 from Qdrant.
var errNotFound = errors.New("qdrant: not found")

func (x *Index) GetCollection(ctx context.Context, name string) (domain.Collection, error) {
	x.mu.Lock()
	pending := x.pending[name]
	x.mu.Unlock()
	if pending {
		return &Collection{index: x, name: name}, nil
	}
	err := x.do(ctx, http.MethodGet, x.collectionURL(name), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil, domain.CollectionNotFound(name)
	}
	if err != nil {
		return nil, err
	}
	return &Collection{index: x, name: name, created: true}, nil
}

func (x *Index) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	if c, err := x.GetCollection(ctx, name); err == nil {
		return c, nil
	} else if !errors.Is(err, domain.ErrIndexNotFound) {
		return nil, err
	}
	x.mu.Lock()
	x.pending[name] = true
	x.mu.Unlock()
	return &Collection{index: x, name: name}, nil
}

func (x *Index) DeleteCollection(ctx context.Context, name string) error {
	x.mu.Lock()
	pending := x.pending[name]
	delete(x.pending, name)
	x.mu.Unlock()

	err := x.do(ctx, http.MethodDelete, x.collectionURL(name), nil, nil)
	if errors.Is(err, errNotFound) {
		if pending {
			return nil
		}
		return domain.CollectionNotFound(name)
	}
	return err
}

func (x *Index) Close() error {
	x.client.CloseIdleConnections()
	return nil
}

func (x *Index) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", x.url, url.PathEscape(name))
}

// qdrantDistance maps a metric to Qdrant's distance name.
func qdrantDistance(m vectorstore.Metric) string {
	if m == vectorstore.Cosine {
		return "Cosine"
	}
	return "Euclid"
}

// Collection is a handle onto one Qdrant collection.
type Collection struct {
	index *Index
	name  string

	mu      sync.Mutex
	created bool
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) ensure(ctx context.Context, dimension int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": qdrantDistance(c.index.metric),
		},
	}
	// Qdrant returns 200 OK if collection exists with same schema
	if err := c.index.do(ctx, http.MethodPut, c.index.collectionURL(c.name), body, nil); err != nil {
		return err
	}
	c.created = true
	c.index.mu.Lock()
	delete(c.index.pending, c.name)
	c.index.mu.Unlock()
	return nil
}

// PointID derives the UUID Qdrant stores for a document id. Qdrant only
// accepts integers or UUIDs, so the original id travels in the payload.
func PointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (c *Collection) Put(ctx context.Context, id string, vector []float64, text string) error {
	if err := vectorstore.CheckDimension(0, vector); err != nil {
		return err
	}
	if err := c.ensure(ctx, len(vector)); err != nil {
		return err
	}
	body := map[string]any{"points": []map[string]any{{
		"id":     PointID(id),
		"vector": vector,
		"payload": map[string]any{
			"doc_id": id,
			"text":   text,
		},
	}}}
	return c.index.do(ctx, http.MethodPut, c.index.collectionURL(c.name)+"/points?wait=true", body, nil)
}

func (c *Collection) Query(ctx context.Context, vector []float64, k int) ([]domain.RetrievalHit, error) {
	c.mu.Lock()
	created := c.created
	c.mu.Unlock()
	if !created {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				DocID string `json:"doc_id"`
				Text  string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := c.index.do(ctx, http.MethodPost, c.index.collectionURL(c.name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.RetrievalHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		// Cosine scores are similarities; Euclid scores are already distances.
		d := r.Score
		if c.index.metric == vectorstore.Cosine {
			d = 1 - r.Score
		}
		hits = append(hits, domain.RetrievalHit{ID: r.Payload.DocID, Text: r.Payload.Text, Distance: d})
	}
	return vectorstore.Nearest(hits, k), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	created := c.created
	c.mu.Unlock()
	if !created {
		return 0, nil
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.index.do(ctx, http.MethodPost, c.index.collectionURL(c.name)+"/points/count", map[string]any{"exact": true}, &resp)
	return resp.Result.Count, err
}

func (x *Index) do(ctx context.Context, method, endpoint string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, endpoint, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
