package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("directory entry not found")
)

type Repository interface {
	GetVenue(ctx context.Context, id string) (*Venue, error)
	GetTable(ctx context.Context, id string) (*Table, error)
	GetMembership(ctx context.Context, orgID, userID string) (*Membership, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	// MembershipsForUser returns every membership the user holds, with
	// assigned venues populated. Used when no organization context is given.
	MembershipsForUser(ctx context.Context, userID string) ([]Membership, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetVenue(ctx context.Context, id string) (*Venue, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var v Venue
	err := r.db.QueryRow(ctx, `
		SELECT id, organization_id, name FROM venues WHERE id=$1
	`, id).Scan(&v.ID, &v.OrganizationID, &v.Name)
	if err != nil {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (r *PGRepo) GetTable(ctx context.Context, id string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var t Table
	err := r.db.QueryRow(ctx, `
		SELECT id, venue_id, name FROM tables WHERE id=$1
	`, id).Scan(&t.ID, &t.VenueID, &t.Name)
	if err != nil {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *PGRepo) GetMembership(ctx context.Context, orgID, userID string) (*Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var m Membership
	err := r.db.QueryRow(ctx, `
		SELECT organization_id, user_id, role
		FROM memberships WHERE organization_id=$1 AND user_id=$2
	`, orgID, userID).Scan(&m.OrganizationID, &m.UserID, &m.Role)
	if err != nil {
		return nil, ErrNotFound
	}
	if m.Role == RoleStaff {
		if err := r.loadAssignedVenues(ctx, &m); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (r *PGRepo) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT organization_id, user_id, role
		FROM memberships WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Role == RoleStaff {
			if err := r.loadAssignedVenues(ctx, &out[i]); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *PGRepo) loadAssignedVenues(ctx context.Context, m *Membership) error {
	rows, err := r.db.Query(ctx, `
		SELECT venue_id FROM membership_venues
		WHERE organization_id=$1 AND user_id=$2
	`, m.OrganizationID, m.UserID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		m.AssignedVenueIDs = append(m.AssignedVenueIDs, id)
	}
	return rows.Err()
}

func (r *PGRepo) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, expires_at, revoked_at FROM sessions WHERE id=$1
	`, id).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &s, nil
}
