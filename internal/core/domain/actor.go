package domain

import (
	"sort"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// Role is the staff role carried by an authenticated session.
type Role string

const (
	RoleSupport    Role = "support"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsValid checks if the role is one of the known staff roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSupport, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ParseRole converts a raw role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", apperrors.ErrInvalidRole
	}
	return r, nil
}

// Actor is an authenticated staff member. Viewer and actor are the same thing
// seen from the event channel and from the action endpoints respectively.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
	Name string    `json:"name"`
}

// IsSuperAdmin reports whether the actor may use override paths.
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// IsAdmin reports whether the actor is admin or super_admin.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// DisplayName falls back to the id when no name is known.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID.String()
}

// Validate checks the actor carries an id and a known role.
func (a Actor) Validate() error {
	if a.ID == uuid.Nil {
		return apperrors.ErrUnauthorized
	}
	if !a.Role.IsValid() {
		return apperrors.ErrInvalidRole
	}
	return nil
}

// Permission names reported to clients. They mirror the rules enforced by
// the visibility filter and the ticket lock.
const (
	PermTicketsWork         = "tickets:work"
	PermTicketsViewAll      = "tickets:view_all"
	PermTicketsOverride     = "tickets:override"
	PermNotificationsManage = "notifications:manage"
	PermSystemEventsEmit    = "system_events:emit"
)

// Permissions lists what the actor's role allows, sorted.
func (a Actor) Permissions() []string {
	if !a.Role.IsValid() {
		return []string{}
	}
	perms := []string{PermTicketsWork}
	if a.IsAdmin() {
		perms = append(perms, PermNotificationsManage, PermTicketsViewAll)
	}
	if a.IsSuperAdmin() {
		perms = append(perms, PermSystemEventsEmit, PermTicketsOverride)
	}
	sort.Strings(perms)
	return perms
}
