package memory

import (
	"context"
	"sync"

	"wikirag/internal/domain"
	"wikirag/internal/vectorstore"
)

// Index is a simple in-memory vector index using brute-force distance scans.
// Contents are lost when the process exits.
type Index struct {
	mu          sync.RWMutex
	metric      vectorstore.Metric
	collections map[string]*Collection
}

// NewIndex creates an empty index using metric.
func NewIndex(metric vectorstore.Metric) *Index {
	if metric == "" {
		metric = vectorstore.L2
	}
	return &Index{metric: metric, collections: make(map[string]*Collection)}
}

func (x *Index) GetCollection(_ context.Context, name string) (domain.Collection, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.collections[name]
	if !ok {
		return nil, domain.CollectionNotFound(name)
	}
	return c, nil
}

// CreateCollection returns the existing collection if name is already taken.
func (x *Index) CreateCollection(_ context.Context, name string) (domain.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok := x.collections[name]; ok {
		return c, nil
	}
	c := &Collection{name: name, metric: x.metric, index: make(map[string]int)}
	x.collections[name] = c
	return c, nil
}

func (x *Index) DeleteCollection(_ context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.collections[name]; !ok {
		return domain.CollectionNotFound(name)
	}
	delete(x.collections, name)
	return nil
}

func (x *Index) Close() error { return nil }

// Collection stores vectors with their texts. Putting an existing id
// replaces it.
type Collection struct {
	mu        sync.RWMutex
	name      string
	metric    vectorstore.Metric
	dimension int
	ids       []string
	vectors   [][]float64
	texts     []string
	index     map[string]int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Put(_ context.Context, id string, vector []float64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := vectorstore.CheckDimension(c.dimension, vector); err != nil {
		return err
	}
	c.dimension = len(vector)
	v := append([]float64(nil), vector...)
	if i, ok := c.index[id]; ok {
		c.vectors[i] = v
		c.texts[i] = text
		return nil
	}
	c.index[id] = len(c.ids)
	c.ids = append(c.ids, id)
	c.vectors = append(c.vectors, v)
	c.texts = append(c.texts, text)
	return nil
}

func (c *Collection) Query(_ context.Context, vector []float64, k int) ([]domain.RetrievalHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ids) == 0 {
		return nil, nil
	}
	if err := vectorstore.CheckDimension(c.dimension, vector); err != nil {
		return nil, err
	}
	hits := make([]domain.RetrievalHit, len(c.ids))
	for i := range c.ids {
		hits[i] = domain.RetrievalHit{ID: c.ids[i], Text: c.texts[i], Distance: c.metric.Distance(c.vectors[i], vector)}
	}
	return vectorstore.Nearest(hits, k), nil
}

func (c *Collection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids), nil
}
