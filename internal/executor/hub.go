package executor

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/sameeeeeeep/autoclawd-sub001/internal/agent"
)

// TaskEvent is an agent event tagged with the task it belongs to.
type TaskEvent struct {
	TaskID string `json:"taskId"`
	agent.Event
}

// Hub fans execution events out to live subscribers. Slow subscribers drop
// events rather than stalling the runner.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	taskID string
	ch     chan TaskEvent
}

func NewHub() *Hub {
	return &Hub{subs: map[string]*subscriber{}}
}

// Subscribe returns a channel of events for taskID, or for every task when
// taskID is empty. The channel closes when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, taskID string) <-chan TaskEvent {
	ch := make(chan TaskEvent, 64)
	id := ulid.Make().String()

	h.mu.Lock()
	h.subs[id] = &subscriber{taskID: taskID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		close(ch)
	}()
	return ch
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to matching subscribers without blocking.
func (h *Hub) Publish(ev TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.taskID != "" && sub.taskID != ev.TaskID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
