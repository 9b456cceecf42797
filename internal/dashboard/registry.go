package dashboard

import (
	"sync"
	"time"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Registry keeps one View per browser session. Views are created on demand,
// so evicting one only drops cached dashboard state; the next request of
// that session builds a fresh view.
type Registry struct {
	deps Deps
	now  func() time.Time

	mu    sync.Mutex
	views map[string]*registered
}

type registered struct {
	view     *View
	lastSeen time.Time
}

func NewRegistry(deps Deps) *Registry {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{deps: deps, now: now, views: make(map[string]*registered)}
}

// View returns the view of sessionID, creating it for u when absent. An
// existing view is handed the freshly loaded user so that role or
// university changes re-run visibility.
func (r *Registry) View(sessionID string, u *calendar.User) *View {
	r.mu.Lock()
	entry, ok := r.views[sessionID]
	if ok && entry.view.Closed() {
		delete(r.views, sessionID)
		ok = false
	}
	if !ok {
		entry = &registered{view: NewView(NewSession(sessionID, u), r.deps)}
		r.views[sessionID] = entry
	}
	entry.lastSeen = r.now()
	v := entry.view
	r.mu.Unlock()

	if ok {
		v.session.Set(u)
	}
	return v
}

// Lookup returns the view of sessionID if one is open.
func (r *Registry) Lookup(sessionID string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[sessionID]
	if !ok || entry.view.Closed() {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.view, true
}

// Close ends the view of sessionID, e.g. on logout.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	entry, ok := r.views[sessionID]
	delete(r.views, sessionID)
	r.mu.Unlock()

	if ok {
		entry.view.session.Set(nil)
		entry.view.Close()
	}
}

// EvictIdle closes every view not used for longer than idle and returns how
// many were removed.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	var evicted []*View
	for id, entry := range r.views {
		if entry.lastSeen.Before(cutoff) || entry.view.Closed() {
			evicted = append(evicted, entry.view)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range evicted {
		v.Close()
	}
	return len(evicted)
}

// Replace closes the views userID holds under sessions other than sessionID.
// It runs on sign-in; a still-valid older session rebuilds its view on its
// next request.
func (r *Registry) Replace(userID, sessionID string) int {
	r.mu.Lock()
	var evicted []*View
	for id, entry := range r.views {
		if id == sessionID {
			continue
		}
		if cur := entry.view.session.User(); cur != nil && cur.ID == userID {
			evicted = append(evicted, entry.view)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, v := range evicted {
		v.Close()
	}
	return len(evicted)
}

// UserChanged pushes a profile change to every session of userID. A nil
// user signs those sessions out.
func (r *Registry) UserChanged(userID string, u *calendar.User) {
	r.mu.Lock()
	var sessions []*Session
	for id, entry := range r.views {
		cur := entry.view.session.User()
		if cur == nil || cur.ID != userID {
			continue
		}
		sessions = append(sessions, entry.view.session)
		if u == nil {
			delete(r.views, id)
		}
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Set(u)
	}
}

// Len reports the number of open views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
