// Package access derives what a user may do and see from their role.
package access

import (
	"fmt"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

// Capabilities is the permission bundle granted by a role.
type Capabilities struct {
	CanCreate bool `json:"canCreate"`
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
	CanShare  bool `json:"canShare"`
}

var (
	readOnly = Capabilities{}
	editor   = Capabilities{CanCreate: true, CanEdit: true, CanDelete: true}
	manager  = Capabilities{CanCreate: true, CanEdit: true, CanDelete: true, CanShare: true}
)

var roleCapabilities = map[calendar.Role]Capabilities{
	calendar.RoleStudent:    readOnly,
	calendar.RoleTeacher:    editor,
	calendar.RoleProgramOps: manager,
	calendar.RolePM:         manager,
	calendar.RoleCOS:        manager,
	calendar.RoleOrgAdmin:   manager,
	calendar.RoleGuest:      readOnly,
}

// Resolve returns the capability set of role. Roles outside the closed set
// are an error rather than a read-only default.
func Resolve(role calendar.Role) (Capabilities, error) {
	caps, ok := roleCapabilities[role]
	if !ok {
		return Capabilities{}, fmt.Errorf("%w: %q", calendar.ErrUnknownRole, role)
	}
	return caps, nil
}

// For resolves the capabilities of u. A nil user has none.
func For(u *calendar.User) (Capabilities, error) {
	if u == nil {
		return Capabilities{}, calendar.ErrAuthenticationRequired
	}
	return Resolve(u.Role)
}

// Operation names a capability-gated action.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
	OpShare  Operation = "share"
)

// Allows reports whether the set grants op.
func (c Capabilities) Allows(op Operation) bool {
	switch op {
	case OpCreate:
		return c.CanCreate
	case OpEdit:
		return c.CanEdit
	case OpDelete:
		return c.CanDelete
	case OpShare:
		return c.CanShare
	}
	return false
}

// Authorize checks that u may perform op.
func Authorize(u *calendar.User, op Operation) error {
	caps, err := For(u)
	if err != nil {
		return err
	}
	if !caps.Allows(op) {
		return fmt.Errorf("%w: role %s cannot %s", calendar.ErrAuthorizationDenied, u.Role, op)
	}
	return nil
}
