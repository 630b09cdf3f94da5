// Package sqlite is a persistent vector index backed by a single SQLite file.
// Queries are brute-force scans computed in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"wikirag/internal/domain"
	"wikirag/internal/vectorstore"
)

// FileName is the database file created inside the configured directory.
const FileName = "vectors.db"

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	metric    TEXT NOT NULL,
	dimension INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS embeddings (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	text       TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Index stores collections in SQLite.
type Index struct {
	db     *sql.DB
	metric vectorstore.Metric
}

// Open creates dir if needed and opens (or creates) the database in it.
func Open(dir string, metric vectorstore.Metric) (*Index, error) {
	if dir == "" {
		return nil, errors.New("sqlite directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	return OpenPath(filepath.Join(dir, FileName), metric)
}

// OpenPath opens the database at path. ":memory:" is accepted for tests.
func OpenPath(path string, metric vectorstore.Metric) (*Index, error) {
	if metric == "" {
		metric = vectorstore.L2
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer; also keeps ":memory:" to one database
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init index database: %w", err)
		}
	}
	return &Index{db: db, metric: metric}, nil
}

func (x *Index) GetCollection(ctx context.Context, name string) (domain.Collection, error) {
	var metric string
	var dim int
	err := x.db.QueryRowContext(ctx, `SELECT metric, dimension FROM collections WHERE name = ?`, name).Scan(&metric, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.CollectionNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	return &Collection{db: x.db, name: name, metric: vectorstore.Metric(metric)}, nil
}

// CreateCollection returns the existing collection if name is already taken.
func (x *Index) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	if _, err := x.db.ExecContext(ctx,
		`INSERT INTO collections (name, metric) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, string(x.metric)); err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}
	return x.GetCollection(ctx, name)
}

func (x *Index) DeleteCollection(ctx context.Context, name string) error {
	res, err := x.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.CollectionNotFound(name)
	}
	return nil
}

func (x *Index) Close() error { return x.db.Close() }

// Collection is a handle onto one named collection.
type Collection struct {
	db     *sql.DB
	name   string
	metric vectorstore.Metric
}

func (c *Collection) Name() string { return c.name }

// Put upserts id. The first vector fixes the collection's dimension.
func (c *Collection) Put(ctx context.Context, id string, vector []float64, text string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dim int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, c.name).Scan(&dim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CollectionNotFound(c.name)
		}
		return err
	}
	if err := vectorstore.CheckDimension(dim, vector); err != nil {
		return err
	}
	if dim == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimension = ? WHERE name = ?`, len(vector), c.name); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO embeddings (collection, id, vector, text) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET vector = excluded.vector, text = excluded.text`,
		c.name, id, encodeVector(vector), text); err != nil {
		return fmt.Errorf("put %q: %w", id, err)
	}
	return tx.Commit()
}

func (c *Collection) Query(ctx context.Context, vector []float64, k int) ([]domain.RetrievalHit, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, vector, text FROM embeddings WHERE collection = ?`, c.name)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", c.name, err)
	}
	defer func() { _ = rows.Close() }()

	var hits []domain.RetrievalHit
	for rows.Next() {
		var (
			id, text string
			blob     []byte
		)
		if err := rows.Scan(&id, &blob, &text); err != nil {
			return nil, err
		}
		stored := decodeVector(blob)
		if err := vectorstore.CheckDimension(len(stored), vector); err != nil {
			return nil, err
		}
		hits = append(hits, domain.RetrievalHit{ID: id, Text: text, Distance: c.metric.Distance(stored, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.Nearest(hits, k), nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE collection = ?`, c.name).Scan(&n)
	return n, err
}

func encodeVector(v []float64) []byte {
	blob := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(f))
	}
	return blob
}

func decodeVector(blob []byte) []float64 {
	v := make([]float64, len(blob)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return v
}
