package docstore

import (
	"context"
	"sync"
	"time"

	"Lee_Social/internal/pkg"
)

// FaultFunc 测试用的故障注入：返回非 nil 时对应操作直接失败
type FaultFunc func(op, collection, id string) error

// MemoryStore 进程内文档存储，语义与远端存储一致：单文档原子、无跨文档事务
type MemoryStore struct {
	mu     sync.RWMutex
	colls  map[string]map[string]map[string]any
	lastTS int64

	clock Clock
	newID func() string
	feed  ChangeFeed

	faultMu sync.Mutex
	fault   FaultFunc
}

type MemoryOption func(*MemoryStore)

func WithClock(c Clock) MemoryOption {
	return func(m *MemoryStore) { m.clock = c }
}

func WithIDGenerator(f func() string) MemoryOption {
	return func(m *MemoryStore) { m.newID = f }
}

func WithFeed(f ChangeFeed) MemoryOption {
	return func(m *MemoryStore) { m.feed = f }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		colls: make(map[string]map[string]map[string]any),
		clock: time.Now,
		newID: pkg.NewSnowflakeID,
		feed:  NewHub(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFault 设置故障注入，传 nil 取消
func (m *MemoryStore) SetFault(f FaultFunc) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	m.fault = f
}

// Feed 当前使用的变更通知
func (m *MemoryStore) Feed() ChangeFeed {
	return m.feed
}

func (m *MemoryStore) check(ctx context.Context, op, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.faultMu.Lock()
	f := m.fault
	m.faultMu.Unlock()
	if f != nil {
		return f(op, collection, id)
	}
	return nil
}

// stamp 服务器时间单调不减，调用方持有写锁
func (m *MemoryStore) stamp() int64 {
	now := m.clock().UnixMilli()
	if now < m.lastTS {
		now = m.lastTS
	}
	m.lastTS = now
	return now
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := m.check(ctx, "get", collection, id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.colls[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: Clone(data)}, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := m.check(ctx, "set", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	m.put(collection, id, NormalizeData(data, m.stamp()))
	m.mu.Unlock()
	m.feed.Publish(ctx, collection)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	if err := m.check(ctx, "update", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	existing, ok := m.colls[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.put(collection, id, Merge(existing, NormalizeData(partial, m.stamp())))
	m.mu.Unlock()
	m.feed.Publish(ctx, collection)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.check(ctx, "delete", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.colls[collection], id)
	m.mu.Unlock()
	m.feed.Publish(ctx, collection)
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := m.check(ctx, "add", collection, ""); err != nil {
		return "", err
	}
	id := m.newID()
	m.mu.Lock()
	m.put(collection, id, NormalizeData(data, m.stamp()))
	m.mu.Unlock()
	m.feed.Publish(ctx, collection)
	return id, nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := m.check(ctx, "query", q.Collection, ""); err != nil {
		return nil, err
	}
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.colls[q.Collection]))
	for id, data := range m.colls[q.Collection] {
		docs = append(docs, Document{ID: id, Data: Clone(data)})
	}
	m.mu.RUnlock()
	return Apply(q, docs), nil
}

// Mutate 持有写锁执行回调，回调内不能再访问存储
func (m *MemoryStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) error {
	if err := m.check(ctx, "mutate", collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	existing, ok := m.colls[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	next, err := fn(Clone(existing))
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.put(collection, id, NormalizeData(next, m.stamp()))
	m.mu.Unlock()
	m.feed.Publish(ctx, collection)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	return Watch(ctx, m, m.feed, q), nil
}

func (m *MemoryStore) put(collection, id string, data map[string]any) {
	if m.colls[collection] == nil {
		m.colls[collection] = make(map[string]map[string]any)
	}
	m.colls[collection][id] = data
}
