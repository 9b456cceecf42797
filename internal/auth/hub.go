package auth

import (
	"sync"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Hub fans profile changes out to subscribers such as the dashboard registry.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]func(userID string, u *calendar.User)
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(string, *calendar.User))}
}

// Subscribe registers fn. The returned function removes it and may be
// called more than once.
func (h *Hub) Subscribe(fn func(userID string, u *calendar.User)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish reports that the profile of userID is now u, or gone when u is nil.
// Subscribers run on the caller's goroutine, outside the hub lock.
func (h *Hub) Publish(userID string, u *calendar.User) {
	h.mu.Lock()
	fns := make([]func(string, *calendar.User), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(userID, u)
	}
}
