package service

import (
	"context"

	"Lee_Social/internal/repository/docstore"
)

// Update 流中的一项：新的一页或一次查询错误
type Update[T any] struct {
	Value T
	Err   error
}

// Stream 实时页面流。调用方不再关心时必须 Close，否则底层订阅会一直重新查询。
type Stream[T any] struct {
	sub    *docstore.Subscription
	cancel context.CancelFunc
	out    chan Update[T]
	done   chan struct{}
}

type buildFunc[T any] func(ctx context.Context, docs []docstore.Document) (T, error)

func newStream[T any](ctx context.Context, op string, sub *docstore.Subscription, build buildFunc[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		sub:    sub,
		cancel: cancel,
		out:    make(chan Update[T], 1),
		done:   make(chan struct{}),
	}
	go s.run(ctx, op, build)
	return s
}

func (s *Stream[T]) run(ctx context.Context, op string, build buildFunc[T]) {
	defer close(s.done)
	defer close(s.out)
	for snap := range s.sub.Updates() {
		if snap.Err != nil {
			s.push(Update[T]{Err: storeErr(op, "", "", snap.Err)})
			continue
		}
		v, err := build(ctx, snap.Documents)
		if ctx.Err() != nil {
			return
		}
		s.push(Update[T]{Value: v, Err: err})
	}
}

// push 只保留最新一页
func (s *Stream[T]) push(u Update[T]) {
	select {
	case s.out <- u:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	s.out <- u
}

func (s *Stream[T]) Updates() <-chan Update[T] {
	return s.out
}

// Close 幂等，返回后不会再有推送
func (s *Stream[T]) Close() {
	s.cancel()
	s.sub.Close()
	<-s.done
}
