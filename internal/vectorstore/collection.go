// Package vectorstore implements the dual-collection semantic index: a catalog
// collection with one entry per course and a content collection with one
// entry per chunk.
package vectorstore

import (
	"context"
	"math"
	"sort"

	"coursebot/internal/domain"
)

// Record is one entry of a collection.
type Record struct {
	ID        string
	Document  string
	Metadata  map[string]string
	Embedding []float32
}

// Match is a record returned by a query together with its distance to the
// query embedding.
type Match struct {
	Record
	Distance float64
}

// Filter is a conjunction of exact-equality constraints on metadata.
type Filter map[string]string

func (f Filter) matches(meta map[string]string) bool {
	for k, v := range f {
		got, ok := meta[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Collection is a named partition of the vector index.
type Collection interface {
	// Upsert inserts records or replaces them by ID. A replaced record keeps
	// its original storage position.
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to limit records satisfying filter, ordered by
	// ascending distance; equal distances keep storage order. limit must be
	// positive.
	Query(ctx context.Context, embedding []float32, filter Filter, limit int) ([]Match, error)
	Get(ctx context.Context, id string) (*Record, error)
	IDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	// Delete removes every record satisfying filter and reports how many
	// were removed.
	Delete(ctx context.Context, filter Filter) (int, error)
	Clear(ctx context.Context) error
}

func checkLimit(limit int) error {
	if limit <= 0 {
		return &domain.ConfigurationError{
			Field:  "limit",
			Value:  limit,
			Reason: "search limit must be a positive integer",
		}
	}
	return nil
}

// rank sorts candidates (given in storage order) by distance and trims to limit.
func rank(candidates []Match, limit int) []Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// cosineDistance returns 1 - cosine similarity. A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
