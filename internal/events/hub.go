// Package events fans out job lifecycle changes to live subscribers
// (the /ws/jobs websocket feed).
package events

import (
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// Type 事件種類
type Type string

const (
	JobQueued     Type = "job.queued"
	JobProcessing Type = "job.processing"
	JobDone       Type = "job.done"
	JobFailed     Type = "job.failed"
	ConfigUpdated Type = "config.updated"
)

// Event 推送給訂閱者的訊息
type Event struct {
	Type   Type                 `json:"type"`
	At     int64                `json:"at"`
	Job    *types.JobSummary    `json:"job,omitempty"`
	Config *types.RuntimeConfig `json:"config,omitempty"`
}

// ForJob builds the event matching a job's current status.
func ForJob(job *types.Job) Event {
	var t Type
	switch job.Status {
	case types.StatusQueued:
		t = JobQueued
	case types.StatusProcessing:
		t = JobProcessing
	case types.StatusDone:
		t = JobDone
	default:
		t = JobFailed
	}
	summary := job.Summary()
	return Event{Type: t, At: types.NowMillis(), Job: &summary}
}

// Subscription 單一訂閱者
type Subscription struct {
	C       <-chan Event
	ch      chan Event
	dropped atomic.Int64
}

// Dropped returns how many events were discarded because the subscriber lagged.
func (s *Subscription) Dropped() int {
	return int(s.dropped.Load())
}

// Hub 事件分發器
//
// Publish 永不阻塞：訂閱者緩衝區滿時丟棄該事件，調度迴圈不會被慢速客戶端拖住。
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// NewHub 建立 Hub；buffer 為每個訂閱者的通道容量
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe 註冊新的訂閱者；Hub 已關閉時返回的通道已關閉
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe 移除訂閱者並關閉其通道
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish 廣播事件給所有訂閱者
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribers 目前訂閱者數量
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close 關閉所有訂閱者通道
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}
