package order

import (
	"time"

	"github.com/tably/orderd/internal/apperr"
	"github.com/tably/orderd/internal/directory"
)

// Predicate is a fully-resolved listing constraint: the caller's visibility
// already applied, safe to hand to storage as-is. A nil VenueIDs means "every
// venue in the organization"; an empty non-nil slice matches nothing.
type Predicate struct {
	OrganizationID string
	VenueIDs       []string
	TableID        string
	Status         Status
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	From           time.Time
	To             time.Time
}

// MatchesNothing reports whether the predicate can never select a row.
func (p Predicate) MatchesNothing() bool {
	return p.VenueIDs != nil && len(p.VenueIDs) == 0
}

// ResolveScope narrows a caller-supplied filter to what the membership allows.
// Staff visibility is the intersection of their assigned venue set with any
// requested venue; it never widens. Managers and above see the whole
// organization, minus whatever explicit filters they add themselves.
func ResolveScope(m *directory.Membership, f Filter) (Predicate, error) {
	p := Predicate{
		OrganizationID: m.OrganizationID,
		TableID:        f.TableID,
		Status:         f.Status,
		CustomerName:   f.CustomerName,
		CustomerEmail:  f.CustomerEmail,
		CustomerPhone:  f.CustomerPhone,
		From:           f.From,
		To:             f.To,
	}
	if f.OrganizationID != "" && f.OrganizationID != m.OrganizationID {
		return Predicate{}, apperr.New(apperr.KindForbidden, "organization outside caller scope")
	}

	switch m.Role {
	case directory.RoleOwner, directory.RoleAdministrator, directory.RoleManager:
		if f.VenueID != "" {
			p.VenueIDs = []string{f.VenueID}
		}
		return p, nil
	case directory.RoleStaff:
		if len(m.AssignedVenueIDs) == 0 {
			return Predicate{}, apperr.New(apperr.KindForbidden, "staff member has no assigned venues")
		}
		if f.VenueID == "" {
			p.VenueIDs = append([]string(nil), m.AssignedVenueIDs...)
			return p, nil
		}
		for _, v := range m.AssignedVenueIDs {
			if v == f.VenueID {
				p.VenueIDs = []string{f.VenueID}
				return p, nil
			}
		}
		return Predicate{}, apperr.New(apperr.KindForbidden, "venue outside caller scope")
	default:
		return Predicate{}, apperr.Newf(apperr.KindForbidden, "unknown role %q", m.Role)
	}
}

// AllowsVenue reports whether a single venue is visible under the membership.
// Used by single-order reads, where there is no filter to resolve.
func AllowsVenue(m *directory.Membership, orgID, venueID string) bool {
	if m.OrganizationID != orgID {
		return false
	}
	if m.Role != directory.RoleStaff {
		return true
	}
	for _, v := range m.AssignedVenueIDs {
		if v == venueID {
			return true
		}
	}
	return false
}
