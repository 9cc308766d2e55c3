// Package directory exposes read-only views of entities owned by adjacent
// subsystems: venues, tables, organization memberships and sessions.
package directory

import "time"

type Venue struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

type Table struct {
	ID      string `json:"id"`
	VenueID string `json:"venue_id"`
	Name    string `json:"name"`
}

type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleManager       Role = "manager"
	RoleStaff         Role = "staff"
)

// Membership associates a user with an organization. Staff carry an explicit
// set of venues they may act on; the other roles see the whole organization.
type Membership struct {
	OrganizationID   string   `json:"organization_id"`
	UserID           string   `json:"user_id"`
	Role             Role     `json:"role"`
	AssignedVenueIDs []string `json:"assigned_venue_ids,omitempty"`
}

type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
