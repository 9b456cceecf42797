package dashboard

import (
	"sync"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Session is the single source of truth for who is signed in to one browser
// session. Views observe it through Subscribe.
type Session struct {
	id string

	mu     sync.RWMutex
	user   *calendar.User
	nextID int
	subs   map[int]func(*calendar.User)
}

func NewSession(id string, u *calendar.User) *Session {
	return &Session{id: id, user: cloneUser(u), subs: make(map[int]func(*calendar.User))}
}

// ID returns the browser session identifier.
func (s *Session) ID() string { return s.id }

// User returns a copy of the current user, or nil when signed out.
func (s *Session) User() *calendar.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// Set replaces the user and notifies subscribers when anything changed.
func (s *Session) Set(u *calendar.User) {
	s.mu.Lock()
	if sameUser(s.user, u) {
		s.mu.Unlock()
		return
	}
	s.user = cloneUser(u)
	fns := make([]func(*calendar.User), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(cloneUser(u))
	}
}

// Subscribe registers fn for user changes. The returned function removes it
// and is safe to call more than once.
func (s *Session) Subscribe(fn func(*calendar.User)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func cloneUser(u *calendar.User) *calendar.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.UniversityID != nil {
		id := *u.UniversityID
		c.UniversityID = &id
	}
	if u.UniversityName != nil {
		name := *u.UniversityName
		c.UniversityName = &name
	}
	return &c
}

func sameUser(a, b *calendar.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Email == b.Email && a.DisplayName == b.DisplayName && a.Role == b.Role &&
		sameString(a.UniversityID, b.UniversityID) && sameString(a.UniversityName, b.UniversityName)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
