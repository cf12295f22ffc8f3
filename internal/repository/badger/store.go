// Package badger 单机部署用的嵌入式文档存储
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"Lee_Social/internal/pkg"
	"Lee_Social/internal/repository/docstore"
)

// 集合名里会出现 "/"，所以 key 用 \x00 分隔，前缀扫描不会串到子集合
const keySep = "\x00"

const maxConflictRetries = 5

type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
	Logger     *zap.Logger
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store 基于 badger 的 docstore.Store 实现，查询为前缀扫描加内存过滤
type Store struct {
	db    *badger.DB
	feed  docstore.ChangeFeed
	clock docstore.Clock
	newID func() string
	log   *zap.Logger

	tsMu   sync.Mutex
	lastTS int64

	stopGC chan struct{}
	gcDone chan struct{}
}

type Option func(*Store)

func WithFeed(f docstore.ChangeFeed) Option {
	return func(s *Store) { s.feed = f }
}

func WithClock(c docstore.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func Open(cfg Config, opts ...Option) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}
	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{s: cfg.Logger.Sugar()})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{
		db:    db,
		feed:  docstore.NewHub(),
		clock: time.Now,
		newID: pkg.NewSnowflakeID,
		log:   cfg.Logger,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *Store) Feed() docstore.ChangeFeed {
	return s.feed
}

func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn("badger value log gc", zap.Error(err))
			}
		}
	}
}

func (s *Store) stamp() int64 {
	s.tsMu.Lock()
	defer s.tsMu.Unlock()
	now := s.clock().UnixMilli()
	if now < s.lastTS {
		now = s.lastTS
	}
	s.lastTS = now
	return now
}

func docKey(collection, id string) []byte {
	return []byte(collection + keySep + id)
}

func encode(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

func decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	// json.Number 还原为 int64/float64
	return docstore.NormalizeData(data, 0), nil
}

func readDoc(txn *badger.Txn, key []byte) (map[string]any, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var data map[string]any
	err = item.Value(func(val []byte) error {
		var derr error
		data, derr = decode(val)
		return derr
	})
	return data, err
}

func writeDoc(txn *badger.Txn, key []byte, data map[string]any) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func wrap(err error) error {
	if err == nil || errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) || errors.Is(err, badger.ErrConflict) {
		return errors.Join(docstore.ErrUnavailable, err)
	}
	return err
}

// update 乐观事务冲突时重试
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return wrap(err)
		}
	}
	return wrap(err)
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		var rerr error
		data, rerr = readDoc(txn, docKey(collection, id))
		return rerr
	})
	if err != nil {
		return nil, wrap(err)
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	norm := docstore.NormalizeData(data, s.stamp())
	err := s.update(ctx, func(txn *badger.Txn) error {
		return writeDoc(txn, docKey(collection, id), norm)
	})
	if err == nil {
		s.feed.Publish(ctx, collection)
	}
	return err
}

func (s *Store) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	norm := docstore.NormalizeData(partial, s.stamp())
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := docKey(collection, id)
		existing, err := readDoc(txn, key)
		if err != nil {
			return err
		}
		return writeDoc(txn, key, docstore.Merge(existing, norm))
	})
	if err == nil {
		s.feed.Publish(ctx, collection)
	}
	return err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(docKey(collection, id))
	})
	if err == nil {
		s.feed.Publish(ctx, collection)
	}
	return err
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	prefix := []byte(q.Collection + keySep)
	var docs []docstore.Document
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				data, derr := decode(val)
				if derr != nil {
					return derr
				}
				docs = append(docs, docstore.Document{ID: id, Data: data})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	return docstore.Apply(q, docs), nil
}

// Mutate 在一个读写事务里完成读改写，冲突时整体重试，回调可能被调用多次
func (s *Store) Mutate(ctx context.Context, collection, id string, fn docstore.MutateFunc) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := docKey(collection, id)
		existing, err := readDoc(txn, key)
		if err != nil {
			return err
		}
		next, err := fn(existing)
		if err != nil {
			return err
		}
		return writeDoc(txn, key, docstore.NormalizeData(next, s.stamp()))
	})
	if err == nil {
		s.feed.Publish(ctx, collection)
	}
	return err
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	return docstore.Watch(ctx, s, s.feed, q), nil
}

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
