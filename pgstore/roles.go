package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/horizonsync/authcore"
)

// Roles resolves role assignments from the role_assignments table.
// Accounts without a row resolve to an empty assignment, which mints
// tokens with no org, no role, and no permissions.
type Roles struct {
	db *sql.DB
}

func NewRoles(db *sql.DB) *Roles {
	return &Roles{db: db}
}

func (r *Roles) Resolve(ctx context.Context, accountID string) (*authcore.RoleAssignment, error) {
	var (
		ra  authcore.RoleAssignment
		raw []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT org_id, role, permissions FROM role_assignments WHERE account_id = $1`,
		accountID).Scan(&ra.OrgID, &ra.Role, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &authcore.RoleAssignment{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ra.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &ra, nil
}

// Assign upserts the account's role assignment.
func (r *Roles) Assign(ctx context.Context, accountID string, ra authcore.RoleAssignment) error {
	perms, err := json.Marshal(ra.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO role_assignments (account_id, org_id, role, permissions)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id)
		 DO UPDATE SET org_id = $2, role = $3, permissions = $4`,
		accountID, ra.OrgID, ra.Role, perms)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}
