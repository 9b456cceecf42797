package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

func TestRegistryReusesViewPerSession(t *testing.T) {
	r := NewRegistry(Deps{Backend: campusBackend(), Logger: zerolog.Nop()})
	u := userWithRole(calendar.RoleTeacher)

	a := r.View("s1", u)
	if b := r.View("s1", u); a != b {
		t.Error("expected the same view for the same session")
	}
	if c := r.View("s2", u); c == a {
		t.Error("different sessions share a view")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.Close("s1")
	if !a.Closed() {
		t.Error("Close did not close the view")
	}
	if _, ok := r.Lookup("s1"); ok {
		t.Error("closed view still registered")
	}
	if d := r.View("s1", u); d == a {
		t.Error("closed view was handed out again")
	}
}

func TestRegistryPushesProfileChanges(t *testing.T) {
	r := NewRegistry(Deps{Backend: campusBackend(), Logger: zerolog.Nop()})
	teacher := userWithRole(calendar.RoleTeacher)
	other := &calendar.User{ID: "someone-else", Email: "x@uni.edu", Role: calendar.RoleGuest}

	v1 := r.View("s1", teacher)
	v2 := r.View("s2", teacher)
	v3 := r.View("s3", other)

	promoted := *teacher
	promoted.Role = calendar.RoleCOS
	r.UserChanged(teacher.ID, &promoted)

	for _, v := range []*View{v1, v2} {
		if got := v.session.User(); got == nil || got.Role != calendar.RoleCOS {
			t.Errorf("session user = %+v, want COS", got)
		}
	}
	if got := v3.session.User(); got.Role != calendar.RoleGuest {
		t.Errorf("unrelated session changed: %+v", got)
	}

	r.UserChanged(teacher.ID, nil)
	if !v1.Closed() || !v2.Closed() || v3.Closed() {
		t.Error("removing a user should close exactly that user's views")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryEvictsIdleViews(t *testing.T) {
	clock := march15
	r := NewRegistry(Deps{Backend: campusBackend(), Logger: zerolog.Nop(), Now: func() time.Time { return clock }})
	teacher := userWithRole(calendar.RoleTeacher)

	var abandoned []*View
	for i := 0; i < 100; i++ {
		abandoned = append(abandoned, r.View(fmt.Sprintf("sess-%d", i), teacher))
	}

	clock = clock.Add(90 * time.Minute)
	active := r.View("sess-0", teacher)
	if _, ok := r.Lookup("sess-1"); !ok {
		t.Fatal("sess-1 should still be registered")
	}

	clock = clock.Add(90 * time.Minute)
	if n := r.EvictIdle(2 * time.Hour); n != 98 {
		t.Errorf("EvictIdle() = %d, want 98", n)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if active.Closed() {
		t.Error("recently used view was closed")
	}
	for _, v := range abandoned[2:] {
		if !v.Closed() {
			t.Fatal("idle view left open")
		}
	}
	if got := abandoned[5].session.subscribers(); got != 0 {
		t.Errorf("evicted view still subscribed (%d)", got)
	}

	if d := r.View("sess-5", teacher); d == abandoned[5] {
		t.Error("evicted view was handed out again")
	}
}

func TestRegistryReplaceClosesOlderSessions(t *testing.T) {
	r := NewRegistry(Deps{Backend: campusBackend(), Logger: zerolog.Nop()})
	teacher := userWithRole(calendar.RoleTeacher)
	student := userWithRole(calendar.RoleStudent)

	old1 := r.View("old-1", teacher)
	old2 := r.View("old-2", teacher)
	other := r.View("other", student)
	current := r.View("new", teacher)

	if n := r.Replace(teacher.ID, "new"); n != 2 {
		t.Errorf("Replace() = %d, want 2", n)
	}
	if !old1.Closed() || !old2.Closed() {
		t.Error("older sessions of the user should be closed")
	}
	if current.Closed() || other.Closed() {
		t.Error("current session and other users must stay open")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if n := r.Replace(teacher.ID, "new"); n != 0 {
		t.Errorf("second Replace() = %d, want 0", n)
	}
}

func TestSessionSubscribe(t *testing.T) {
	s := NewSession("s", userWithRole(calendar.RoleStudent))
	var seen []*calendar.User
	unsubscribe := s.Subscribe(func(u *calendar.User) { seen = append(seen, u) })

	same := userWithRole(calendar.RoleStudent)
	s.Set(same)
	if len(seen) != 0 {
		t.Error("unchanged user should not notify")
	}

	s.Set(userWithRole(calendar.RoleTeacher))
	if len(seen) != 1 || seen[0].Role != calendar.RoleTeacher {
		t.Errorf("notifications = %+v", seen)
	}

	unsubscribe()
	unsubscribe()
	s.Set(nil)
	if len(seen) != 1 {
		t.Error("notified after unsubscribe")
	}
	if s.User() != nil {
		t.Error("user not cleared")
	}
}
