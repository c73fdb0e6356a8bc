package vectorstore

import (
	"context"
	"sync"
)

// MemoryCollection keeps records in insertion order behind a RWMutex.
// Queries take the read lock, so concurrent searches do not block each other.
type MemoryCollection struct {
	mu      sync.RWMutex
	name    string
	records []Record
	index   map[string]int // id -> position in records
}

func NewMemoryCollection(name string) *MemoryCollection {
	return &MemoryCollection{
		name:  name,
		index: make(map[string]int),
	}
}

func (c *MemoryCollection) Upsert(ctx context.Context, records []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		r = cloneRecord(r)
		if pos, ok := c.index[r.ID]; ok {
			c.records[pos] = r
			continue
		}
		c.index[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return nil
}

func (c *MemoryCollection) Query(ctx context.Context, embedding []float32, filter Filter, limit int) ([]Match, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var candidates []Match
	for _, r := range c.records {
		if !filter.matches(r.Metadata) {
			continue
		}
		candidates = append(candidates, Match{
			Record:   cloneRecord(r),
			Distance: cosineDistance(embedding, r.Embedding),
		})
	}
	return rank(candidates, limit), nil
}

func (c *MemoryCollection) Get(ctx context.Context, id string) (*Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[id]
	if !ok {
		return nil, nil
	}
	r := cloneRecord(c.records[pos])
	return &r, nil
}

func (c *MemoryCollection) IDs(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, len(c.records))
	for i, r := range c.records {
		ids[i] = r.ID
	}
	return ids, nil
}

func (c *MemoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

func (c *MemoryCollection) Delete(ctx context.Context, filter Filter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.records[:0]
	removed := 0
	for _, r := range c.records {
		if filter.matches(r.Metadata) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	c.records = kept
	c.index = make(map[string]int, len(kept))
	for i, r := range kept {
		c.index[r.ID] = i
	}
	return removed, nil
}

func (c *MemoryCollection) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.index = make(map[string]int)
	return nil
}

func cloneRecord(r Record) Record {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	r.Metadata = meta
	return r
}
