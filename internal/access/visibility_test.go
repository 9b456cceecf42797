package access

import (
	"testing"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

func ptr(s string) *string { return &s }

func ids(cals []calendar.Calendar) []string {
	out := make([]string, 0, len(cals))
	for _, c := range cals {
		out = append(out, c.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestComputeVisibleOrgAdminSeesEverything(t *testing.T) {
	all := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1"), Category: calendar.CategoryEvent},
		{ID: "c2", UniversityID: ptr("U2"), Category: calendar.CategoryAcademic},
		{ID: "c3", Category: calendar.CategoryAdmin},
	}
	u := &calendar.User{ID: "a", Role: calendar.RoleOrgAdmin, UniversityID: ptr("U1")}

	v := ComputeVisible(u, all, nil)
	if len(v.Visible) != len(all) {
		t.Fatalf("visible = %d, want %d", len(v.Visible), len(all))
	}
	if v.DefaultActive == nil || v.DefaultActive.ID != "c1" {
		t.Errorf("default = %+v, want first calendar", v.DefaultActive)
	}

	v = ComputeVisible(u, all, &calendar.Calendar{ID: "c3"})
	if v.DefaultActive == nil || v.DefaultActive.ID != "c3" {
		t.Errorf("existing selection not kept: %+v", v.DefaultActive)
	}
}

func TestComputeVisibleStudentUniversity(t *testing.T) {
	all := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1")},
		{ID: "c2", UniversityID: ptr("U2")},
	}
	u := &calendar.User{ID: "s", Role: calendar.RoleStudent, UniversityID: ptr("U1")}

	v := ComputeVisible(u, all, nil)
	if got := ids(v.Visible); !equalIDs(got, []string{"c1"}) {
		t.Errorf("visible = %v, want [c1]", got)
	}
	if v.DefaultActive != nil {
		t.Errorf("default = %+v, want nil", v.DefaultActive)
	}
}

func TestComputeVisibleEditorPrefersAcademic(t *testing.T) {
	all := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1"), Category: calendar.CategoryEvent},
		{ID: "c2", UniversityID: ptr("U1"), Category: calendar.CategoryAcademic},
	}
	for _, role := range []calendar.Role{calendar.RoleTeacher, calendar.RolePM, calendar.RoleCOS, calendar.RoleProgramOps} {
		t.Run(string(role), func(t *testing.T) {
			u := &calendar.User{ID: "t", Role: role, UniversityID: ptr("U1")}
			v := ComputeVisible(u, all, nil)
			if v.DefaultActive == nil || v.DefaultActive.ID != "c2" {
				t.Errorf("default = %+v, want c2", v.DefaultActive)
			}
		})
	}

	u := &calendar.User{ID: "t", Role: calendar.RoleTeacher, UniversityID: ptr("U1")}
	v := ComputeVisible(u, all[:1], nil)
	if v.DefaultActive == nil || v.DefaultActive.ID != "c1" {
		t.Errorf("without academic calendar default = %+v, want c1", v.DefaultActive)
	}
	if v := ComputeVisible(u, nil, nil); v.DefaultActive != nil {
		t.Errorf("empty set default = %+v, want nil", v.DefaultActive)
	}
}

func TestComputeVisibleWithoutUniversity(t *testing.T) {
	all := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1"), IsPublic: true},
		{ID: "c2", UniversityID: ptr("U1")},
		{ID: "c3", Category: calendar.CategoryAdmin},
	}
	u := &calendar.User{ID: "p", Role: calendar.RoleProgramOps}

	v := ComputeVisible(u, all, nil)
	if got := ids(v.Visible); !equalIDs(got, []string{"c1", "c3"}) {
		t.Errorf("visible = %v, want [c1 c3]", got)
	}
}

func TestComputeVisibleDropsStaleSelection(t *testing.T) {
	teacher := &calendar.User{ID: "t", Role: calendar.RoleTeacher, UniversityID: ptr("U1")}
	before := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1"), Category: calendar.CategoryEvent},
		{ID: "c2", UniversityID: ptr("U1"), Category: calendar.CategoryAcademic},
	}
	first := ComputeVisible(teacher, before, nil)
	if first.DefaultActive == nil || first.DefaultActive.ID != "c2" {
		t.Fatalf("setup default = %+v, want c2", first.DefaultActive)
	}

	// c2 moved to another university.
	after := []calendar.Calendar{
		{ID: "c1", UniversityID: ptr("U1"), Category: calendar.CategoryEvent},
		{ID: "c2", UniversityID: ptr("U2"), Category: calendar.CategoryAcademic},
	}
	second := ComputeVisible(teacher, after, first.DefaultActive)
	if second.DefaultActive == nil || second.DefaultActive.ID != "c1" {
		t.Errorf("recomputed default = %+v, want c1", second.DefaultActive)
	}

	student := &calendar.User{ID: "s", Role: calendar.RoleStudent, UniversityID: ptr("U1")}
	if v := ComputeVisible(student, after, &calendar.Calendar{ID: "c2"}); v.DefaultActive != nil {
		t.Errorf("student kept invisible selection %+v", v.DefaultActive)
	}
	if v := ComputeVisible(student, after, &calendar.Calendar{ID: "c1"}); v.DefaultActive == nil || v.DefaultActive.ID != "c1" {
		t.Errorf("student lost visible explicit selection: %+v", v.DefaultActive)
	}
}

func TestComputeVisibleReturnsFreshInstance(t *testing.T) {
	u := &calendar.User{ID: "a", Role: calendar.RoleOrgAdmin}
	stale := &calendar.Calendar{ID: "c1", Name: "Old name"}
	v := ComputeVisible(u, []calendar.Calendar{{ID: "c1", Name: "New name"}}, stale)
	if v.DefaultActive == stale || v.DefaultActive.Name != "New name" {
		t.Errorf("default should point into the new visible set, got %+v", v.DefaultActive)
	}
}

func TestFilterByCategory(t *testing.T) {
	cals := []calendar.Calendar{
		{ID: "a", Category: calendar.CategoryAcademic},
		{ID: "e", Category: calendar.CategoryEvent},
	}
	if got := ids(FilterByCategory(cals, "academic")); !equalIDs(got, []string{"a"}) {
		t.Errorf("academic filter = %v", got)
	}
	if got := FilterByCategory(cals, "all"); len(got) != 2 {
		t.Errorf("all filter = %v", got)
	}

	academic := calendar.CategoryAcademic
	types := []calendar.EventType{{ID: "t1", Category: &academic}, {ID: "t2"}}
	if got := FilterEventTypesByCategory(types, "event"); len(got) != 1 || got[0].ID != "t2" {
		t.Errorf("uncategorised types should count as event, got %+v", got)
	}
}
