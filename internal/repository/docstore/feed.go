package docstore

import (
	"context"
	"sync"
)

// ChangeFeed 集合变更通知。事件只携带集合名，订阅方自行重新查询快照。
type ChangeFeed interface {
	Publish(ctx context.Context, collection string)
	// Listen 返回事件通道与取消函数；通道容量为1，连续变更会被合并
	Listen(collection string) (<-chan struct{}, func())
}

// Hub 进程内的变更广播
type Hub struct {
	mu        sync.Mutex
	next      int
	listeners map[string]map[int]chan struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[int]chan struct{})}
}

func (h *Hub) Publish(_ context.Context, collection string) {
	h.Notify(collection)
}

// Notify 非阻塞地唤醒该集合的全部监听者
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) Listen(collection string) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan struct{}, 1)
	if h.listeners[collection] == nil {
		h.listeners[collection] = make(map[int]chan struct{})
	}
	h.listeners[collection][id] = ch

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[collection], id)
			if len(h.listeners[collection]) == 0 {
				delete(h.listeners, collection)
			}
		})
	}
	return ch, stop
}

// Listeners 当前监听者数量，用于检查订阅是否已释放
func (h *Hub) Listeners(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[collection])
}
