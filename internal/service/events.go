package service

import (
	"sync"

	"github.com/ivlev/scriptvideo/internal/engine"
)

const subscriberBuffer = 32

// Event carries either a progress update or the terminal result of a job.
type Event struct {
	JobID    string                `json:"job_id"`
	Progress *engine.ProgressEvent `json:"progress,omitempty"`
	Result   *engine.Result        `json:"result,omitempty"`
}

func (e Event) Terminal() bool { return e.Result != nil }

type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return 0, ch
	}
	b.nextID++
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

func (b *broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish never blocks. Progress is dropped for a full subscriber; a terminal event
// evicts the oldest queued event instead so it is always delivered.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Terminal() {
			continue
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
