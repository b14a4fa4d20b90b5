package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/hrforge/authcore"
)

var _ authcore.InviteStore = (*InviteStore)(nil)

// InviteStore implements authcore.InviteStore on PostgreSQL. The invites
// table is owned by the sibling invite module; this store only reads codes
// and transitions ACTIVE to USED.
type InviteStore struct {
	db DB
}

// NewInviteStore wraps db.
func NewInviteStore(db DB) *InviteStore {
	return &InviteStore{db: db}
}

// FindActiveByCode returns the invite while it is ACTIVE. Unknown or
// non-ACTIVE codes return ErrInviteInvalid.
func (s *InviteStore) FindActiveByCode(ctx context.Context, code string) (*authcore.Invite, error) {
	var inv authcore.Invite
	err := s.db.QueryRow(ctx,
		`SELECT code, status, department_id, position_id FROM invites WHERE code = $1 AND status = $2`,
		code, authcore.InviteActive,
	).Scan(&inv.Code, &inv.Status, &inv.DepartmentID, &inv.PositionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrInviteInvalid
		}
		return nil, infraErr("find invite", err)
	}
	return &inv, nil
}

// MarkUsed transitions ACTIVE to USED. Idempotent: zero affected rows means
// the invite was already consumed, which is not an error.
func (s *InviteStore) MarkUsed(ctx context.Context, code string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE invites SET status = $1, used_at = now() WHERE code = $2 AND status = $3`,
		authcore.InviteUsed, code, authcore.InviteActive,
	)
	if err != nil {
		return infraErr("mark invite used", err)
	}
	return nil
}
