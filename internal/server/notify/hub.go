package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/poapgate/internal/server/models"
)

const DefaultBacklog = 256

// Hub is an in-process Stream. It keeps the last backlog events for resuming
// subscribers. Publishing never blocks on slow subscribers: every subscriber
// has its own unbounded queue drained by one goroutine.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	backlog []Event
	limit   int
	subs    map[*subscriber]struct{}
}

func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{limit: backlog, subs: map[*subscriber]struct{}{}}
}

func (h *Hub) Publish(_ context.Context, post *models.Post) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := Event{ID: strconv.FormatUint(h.seq, 10), Post: *post}

	h.backlog = append(h.backlog, evt)
	if len(h.backlog) > h.limit {
		h.backlog = h.backlog[len(h.backlog)-h.limit:]
	}
	for s := range h.subs {
		s.push(evt)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, after string) (<-chan Event, error) {
	s := newSubscriber()

	h.mu.Lock()
	if after != "" {
		if from, err := strconv.ParseUint(after, 10, 64); err == nil {
			for _, evt := range h.backlog {
				if n, _ := strconv.ParseUint(evt.ID, 10, 64); n > from {
					s.push(evt)
				}
			}
		}
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
		}()
		s.pump(ctx, out)
	}()
	return out, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type subscriber struct {
	mu    sync.Mutex
	queue []Event
	ready chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{ready: make(chan struct{}, 1)}
}

func (s *subscriber) push(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	evt := s.queue[0]
	s.queue = s.queue[1:]
	return evt, true
}

func (s *subscriber) pump(ctx context.Context, out chan<- Event) {
	for {
		evt, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.ready:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case out <- evt:
		}
	}
}
