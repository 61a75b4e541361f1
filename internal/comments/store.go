package comments

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
)

// Store is the append-only comment feed. Append assigns PostedAt from the
// store's own clock; List returns the feed sorted newest first.
type Store interface {
	Append(ctx context.Context, c Comment) (Comment, error)
	List(ctx context.Context, documentID string) ([]Comment, error)
}

// MemoryStore keeps feeds in process. Its clock is the authoritative one for
// PostedAt.
type MemoryStore struct {
	mu    sync.RWMutex
	feeds map[string][]Comment
	clock clock.Clock
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{feeds: make(map[string][]Comment), clock: clk}
}

func (m *MemoryStore) Append(_ context.Context, c Comment) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.PostedAt = m.clock.Now().UTC()
	m.feeds[c.DocumentID] = append(m.feeds[c.DocumentID], c)
	return c, nil
}

func (m *MemoryStore) List(_ context.Context, documentID string) ([]Comment, error) {
	m.mu.RLock()
	feed := make([]Comment, len(m.feeds[documentID]))
	copy(feed, m.feeds[documentID])
	m.mu.RUnlock()
	SortFeed(feed)
	return feed, nil
}
