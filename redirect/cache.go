package redirect

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"shortlink-gateway/link"
)

const cacheShards = 16

// Cache é um LRU aproximado, particionado, com entradas negativas ("não existe").
// Cada acesso move a entrada para o fim; ao lotar, sai a da frente.
type Cache struct {
	shards      []*cacheShard
	maxPerShard int
	ttl         time.Duration
	negTTL      time.Duration
	now         func() time.Time
}

type cacheShard struct {
	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List
}

type cacheItem struct {
	code      string
	rec       link.Record
	negative  bool
	expiresAt time.Time
}

type CacheOption func(*Cache)

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(capacity int, ttl, negativeTTL time.Duration, opts ...CacheOption) *Cache {
	if capacity <= 0 {
		capacity = 10000
	}
	c := &Cache{
		shards:      make([]*cacheShard, cacheShards),
		maxPerShard: (capacity + cacheShards - 1) / cacheShards,
		ttl:         ttl,
		negTTL:      negativeTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{items: make(map[string]*list.Element), order: list.New()}
	}
	return c
}

func (c *Cache) shardFor(code string) *cacheShard {
	return c.shards[xxhash.Sum64String(code)%uint64(len(c.shards))]
}

// Get devolve (rec, negative, ok). ok=false significa que o cache não sabe nada.
func (c *Cache) Get(code string) (link.Record, bool, bool) {
	s := c.shardFor(code)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[code]
	if !ok {
		return link.Record{}, false, false
	}
	it := el.Value.(*cacheItem)
	if !now.Before(it.expiresAt) {
		s.order.Remove(el)
		delete(s.items, code)
		return link.Record{}, false, false
	}
	s.order.MoveToBack(el)
	return it.rec, it.negative, true
}

func (c *Cache) Put(code string, rec link.Record) {
	c.put(&cacheItem{code: code, rec: rec, expiresAt: c.now().Add(c.ttl)})
}

func (c *Cache) PutNegative(code string) {
	c.put(&cacheItem{code: code, negative: true, expiresAt: c.now().Add(c.negTTL)})
}

func (c *Cache) put(it *cacheItem) {
	s := c.shardFor(it.code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[it.code]; ok {
		el.Value = it
		s.order.MoveToBack(el)
		return
	}
	if len(s.items) >= c.maxPerShard {
		if front := s.order.Front(); front != nil {
			delete(s.items, front.Value.(*cacheItem).code)
			s.order.Remove(front)
		}
	}
	s.items[it.code] = s.order.PushBack(it)
}

// Invalidate remove a entrada (positiva ou negativa) do código.
func (c *Cache) Invalidate(code string) {
	s := c.shardFor(code)
	s.mu.Lock()
	if el, ok := s.items[code]; ok {
		s.order.Remove(el)
		delete(s.items, code)
	}
	s.mu.Unlock()
}

func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}
