package evidence

import (
	"context"
	"slices"
	"sync"
)

// MemoryCorpus is an in-process Corpus.
type MemoryCorpus struct {
	mu    sync.RWMutex
	items []Item
	err   error
}

// NewMemoryCorpus returns a corpus holding items.
func NewMemoryCorpus(items ...Item) *MemoryCorpus {
	return &MemoryCorpus{items: slices.Clone(items)}
}

// Add appends items to the corpus.
func (c *MemoryCorpus) Add(items ...Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, items...)
}

// FailWith makes every later Search return err. A nil err clears it.
func (c *MemoryCorpus) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Search implements Corpus. Keywords are left to the gatherer.
func (c *MemoryCorpus) Search(ctx context.Context, q Query) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}

	var out []Item
	for _, it := range c.items {
		if it.PublishedAt.Before(q.From) || it.PublishedAt.After(q.To) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
