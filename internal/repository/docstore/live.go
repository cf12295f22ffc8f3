package docstore

import (
	"context"
	"reflect"
	"sync"
)

// Snapshot 一次查询结果快照
type Snapshot struct {
	Documents []Document
	Err       error
}

// Subscription 可取消的快照流。
// 必须调用 Close 释放，否则监听会一直存在并持续重新查询。
type Subscription struct {
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Querier 订阅只需要查询能力
type Querier interface {
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Watch 监听集合变更，每次变更重新执行查询，结果不同才推送。
// 慢消费者只会拿到最新快照，旧快照被丢弃。
func Watch(ctx context.Context, src Querier, feed ChangeFeed, q Query) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	// 先注册监听再做首次查询，避免漏掉中间的变更
	events, stop := feed.Listen(q.Collection)
	s := &Subscription{
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, src, q, events, stop)
	return s
}

func (s *Subscription) run(ctx context.Context, src Querier, q Query, events <-chan struct{}, stop func()) {
	defer close(s.done)
	defer close(s.updates)
	defer stop()

	var (
		last  []Document
		first = true
	)
	emit := func() {
		docs, err := src.Query(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.push(Snapshot{Err: err})
			return
		}
		if !first && reflect.DeepEqual(docs, last) {
			return
		}
		first = false
		last = docs
		s.push(Snapshot{Documents: docs})
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			emit()
		}
	}
}

// push 只有 run 协程发送，通道容量为1，因此不会阻塞
func (s *Subscription) push(snap Snapshot) {
	select {
	case s.updates <- snap:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}

// Updates 快照通道，Close 之后会被关闭
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Done 订阅协程退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close 幂等，返回时监听已释放
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
