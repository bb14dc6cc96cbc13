// Package vectorstore holds embedded passages and answers nearest-neighbour
// queries by cosine distance.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrDuplicateID   = errors.New("duplicate passage id")
	ErrInvalidBatch  = errors.New("ids, documents and metadatas must have the same length")
	ErrEmptyQuery    = errors.New("at least one query text is required")
	ErrEmbedMismatch = errors.New("embedding dimension mismatch")
)

// Embedder turns text into a vector. The store embeds both passages and
// queries with the same function.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store uses parallel positional arrays: element i of every slice describes
// the same passage.
type Store interface {
	Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error
	Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error)
	// Get returns the passages with the given ids in request order, skipping
	// unknown ids. A nil slice returns every passage in insertion order.
	Get(ctx context.Context, ids []string) (*GetResult, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// QueryResult has one row per query text.
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]any
	Distances [][]float64
}

type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
}

// Hit is a single scored passage.
type Hit struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Hits flattens row i of the result.
func (r *QueryResult) Hits(i int) []Hit {
	if r == nil || i >= len(r.IDs) {
		return []Hit{}
	}
	hits := make([]Hit, len(r.IDs[i]))
	for j := range r.IDs[i] {
		hits[j] = Hit{
			ID:       r.IDs[i][j],
			Content:  r.Documents[i][j],
			Metadata: r.Metadatas[i][j],
			Distance: r.Distances[i][j],
		}
	}
	return hits
}

// passage is the stored form shared by the backends.
type passage struct {
	id        string
	document  string
	metadata  map[string]any
	embedding []float32
}

func validateBatch(ids, documents []string, metadatas []map[string]any) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) {
		return ErrInvalidBatch
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// embedAll computes every embedding before anything is written so a
// failing batch leaves the store untouched.
func embedAll(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed passage %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// cosineDistance is 1 - cosine similarity, clamped to [0, 2]. A zero vector
// is treated as orthogonal to everything.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrEmbedMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return clampDistance(1 - dot/(math.Sqrt(na)*math.Sqrt(nb))), nil
}

func clampDistance(d float64) float64 {
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

// rank scores passages (given in insertion order) against query and keeps
// the n closest. The stable sort keeps insertion order among equal distances.
func rank(query []float32, passages []passage, n int) ([]passage, []float64, error) {
	type scored struct {
		p    passage
		dist float64
	}

	results := make([]scored, 0, len(passages))
	for _, p := range passages {
		d, err := cosineDistance(query, p.embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("passage %s: %w", p.id, err)
		}
		results = append(results, scored{p: p, dist: d})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].dist < results[j].dist
	})

	if n < 0 {
		n = 0
	}
	if n < len(results) {
		results = results[:n]
	}

	out := make([]passage, len(results))
	dists := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.p
		dists[i] = r.dist
	}
	return out, dists, nil
}

func newQueryResult(rows int) *QueryResult {
	return &QueryResult{
		IDs:       make([][]string, rows),
		Documents: make([][]string, rows),
		Metadatas: make([][]map[string]any, rows),
		Distances: make([][]float64, rows),
	}
}

func (r *QueryResult) setRow(i int, passages []passage, dists []float64) {
	r.IDs[i] = make([]string, len(passages))
	r.Documents[i] = make([]string, len(passages))
	r.Metadatas[i] = make([]map[string]any, len(passages))
	r.Distances[i] = dists
	for j, p := range passages {
		r.IDs[i][j] = p.id
		r.Documents[i][j] = p.document
		r.Metadatas[i][j] = copyMetadata(p.metadata)
	}
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
