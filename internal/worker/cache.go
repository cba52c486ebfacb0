package worker

import (
	"container/list"
	"sync"
	"time"

	"github.com/Dicklesworthstone/dmux/internal/agent"
)

const (
	cacheCapacity = 100
	cacheTTL      = 5 * time.Second
)

type cacheEntry struct {
	hash     uint64
	analysis agent.LLMAnalysis
	storedAt time.Time
}

// analysisCache is a bounded LRU over model analyses keyed by the content
// hash of the capture that produced them. Entries expire after a short TTL
// so a redrawn but unchanged screen reuses the verdict without pinning a
// stale one forever.
type analysisCache struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	order   *list.List // front is most recently used
	entries map[uint64]*list.Element
	now     func() time.Time
}

func newAnalysisCache(capacity int, ttl time.Duration) *analysisCache {
	return &analysisCache{
		cap:     capacity,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[uint64]*list.Element),
		now:     time.Now,
	}
}

func (c *analysisCache) get(hash uint64) (agent.LLMAnalysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[hash]
	if !ok {
		return agent.LLMAnalysis{}, false
	}
	ent := el.Value.(*cacheEntry)
	if c.now().Sub(ent.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, hash)
		return agent.LLMAnalysis{}, false
	}
	c.order.MoveToFront(el)
	return ent.analysis, true
}

func (c *analysisCache) put(hash uint64, a agent.LLMAnalysis) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[hash]; ok {
		ent := el.Value.(*cacheEntry)
		ent.analysis = a
		ent.storedAt = c.now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{hash: hash, analysis: a, storedAt: c.now()})
	c.entries[hash] = el
	for c.order.Len() > c.cap {
		back := c.order.Back()
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).hash)
	}
}

func (c *analysisCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
