package cache

import (
	"clipstash/pkg/domain"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maxSize = 1000000

// LRU is the fast tier. It holds clip values, so nothing handed out by Get
// or Snapshot aliases the stored entry.
type LRU struct {
	c  *lru.Cache[string, domain.Clip]
	mu sync.Mutex
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > maxSize {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, domain.Clip](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}
func (l *LRU) Get(id string) (*domain.Clip, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clip, ok := l.c.Get(id)
	if !ok {
		return nil, false
	}
	return &clip, true
}
func (l *LRU) Set(clip *domain.Clip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(clip.ID, *clip)
}

// Delete reports whether id was present.
func (l *LRU) Delete(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Remove(id)
}
func (l *LRU) Len() int {
	return l.c.Len()
}

// Sweep removes every entry whose expiry is before now and returns how many
// were removed. Recency is not touched.
func (l *LRU) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for _, id := range l.c.Keys() {
		clip, ok := l.c.Peek(id)
		if ok && clip.Expired(now) {
			l.c.Remove(id)
			removed++
		}
	}
	return removed
}

// Snapshot copies every entry, expired or not, oldest-used first.
func (l *LRU) Snapshot() []domain.Clip {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Values()
}
