// Package cache 进程内 TTL 缓存，用于资料文档等读多写少的数据
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

const DefaultTTL = time.Hour

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_cache_hits_total",
		Help: "Cache hits by cache name",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_cache_misses_total",
		Help: "Cache misses by cache name",
	}, []string{"cache"})
)

// Entry 一条缓存记录
type Entry[T any] struct {
	Key       string
	Value     T
	FetchedAt time.Time
}

// Cache 带过期时间的键值缓存。
// 每个 key 有一个代数，Put/Invalidate 都会推进代数；
// 在旧代数下发起的回源结果不会写回，避免覆盖自己刚写入的新值。
type Cache[T any] struct {
	name  string
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]Entry[T]
	gens    map[string]uint64

	group singleflight.Group
}

type Option func(*options)

type options struct {
	ttl   time.Duration
	clock func() time.Time
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

func New[T any](name string, opts ...Option) *Cache[T] {
	o := options{ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}
	return &Cache[T]{
		name:    name,
		ttl:     o.ttl,
		clock:   o.clock,
		entries: make(map[string]Entry[T]),
		gens:    make(map[string]uint64),
	}
}

// Get 未过期才命中，过期条目顺手清掉
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && c.clock().Sub(e.FetchedAt) < c.ttl {
		cacheHits.WithLabelValues(c.name).Inc()
		return e.Value, true
	}
	if ok {
		delete(c.entries, key)
	}
	cacheMisses.WithLabelValues(c.name).Inc()
	var zero T
	return zero, false
}

func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.entries[key] = Entry[T]{Key: key, Value: value, FetchedAt: c.clock()}
}

func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.entries, key)
}

// Len 当前条目数（含已过期未清理的）
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// storeIfCurrent 代数没变才写入
func (c *Cache[T]) storeIfCurrent(key string, gen uint64, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return
	}
	c.entries[key] = Entry[T]{Key: key, Value: value, FetchedAt: c.clock()}
}

// GetOrFetch 命中直接返回；未命中时回源，同一 key 同一代数的并发回源合并为一次
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	gen := c.generation(key)
	v, err, _ := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return val, err
		}
		c.storeIfCurrent(key, gen, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
