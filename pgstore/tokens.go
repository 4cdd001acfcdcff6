package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/horizonsync/authcore"
)

const tokenColumns = `id, account_id, token_hash, family_id, device_name,
	device_type, browser, ip, user_agent, expires_at, created_at,
	last_used_at, revoked_at, revoked_reason`

const insertTokenSQL = `INSERT INTO refresh_tokens
	(id, account_id, token_hash, family_id, device_name, device_type,
	 browser, ip, user_agent, expires_at, created_at, last_used_at,
	 revoked_at, revoked_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*authcore.RefreshToken, error) {
	var (
		t        authcore.RefreshToken
		lastUsed sql.NullTime
		revoked  sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.FamilyID, &t.DeviceName,
		&t.DeviceType, &t.Browser, &t.IP, &t.UserAgent, &t.ExpiresAt, &t.CreatedAt,
		&lastUsed, &revoked, &t.RevokedReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	t.LastUsedAt = timePtr(lastUsed)
	t.RevokedAt = timePtr(revoked)
	return &t, nil
}

func insertToken(ctx context.Context, q dbtx, rec *authcore.RefreshToken) error {
	_, err := q.ExecContext(ctx, insertTokenSQL,
		rec.ID, rec.AccountID, rec.TokenHash, rec.FamilyID, rec.DeviceName,
		rec.DeviceType, rec.Browser, rec.IP, rec.UserAgent, rec.ExpiresAt,
		rec.CreatedAt, nullTime(rec.LastUsedAt), nullTime(rec.RevokedAt),
		rec.RevokedReason)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *Store) StoreRefreshToken(ctx context.Context, rec *authcore.RefreshToken) error {
	return insertToken(ctx, s.db, rec)
}

func (s *Store) RefreshTokenByHash(ctx context.Context, hash string) (*authcore.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, hash)
	return scanToken(row)
}

// RotateRefreshToken retires the old row and inserts its successor in
// one transaction. The revoked_at IS NULL guard on the update is what
// serializes concurrent redemptions of the same token: the first
// transaction to commit flips the row, every later one updates zero
// rows and backs out without inserting anything.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID, reason string, now time.Time, next *authcore.RefreshToken) (bool, error) {
	won := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens
			 SET revoked_at = $2, revoked_reason = $3, last_used_at = $2
			 WHERE id = $1 AND revoked_at IS NULL`, oldID, now, reason)
		if err != nil {
			return fmt.Errorf("retire refresh token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("retire refresh token: %w", err)
		}
		if n == 0 {
			return errRotateLost
		}
		won = true
		return insertToken(ctx, tx, next)
	})
	if errors.Is(err, errRotateLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return won, nil
}

// errRotateLost aborts the rotate transaction without surfacing an
// error to the caller; losing the race is an expected outcome.
var errRotateLost = errors.New("pgstore: rotation lost race")

func (s *Store) RevokeRefreshToken(ctx context.Context, id, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = $2, revoked_reason = $3
		 WHERE id = $1 AND revoked_at IS NULL`, id, now, reason)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Zero rows is either an id that never existed or one revoked
	// earlier; only the former is an error.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !exists {
		return authcore.ErrSessionNotFound
	}
	return nil
}

func (s *Store) RevokeFamily(ctx context.Context, familyID, reason string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = $2, revoked_reason = $3
		 WHERE family_id = $1 AND revoked_at IS NULL`, familyID, now, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke token family: %w", err)
	}
	return int(n), nil
}

func (s *Store) RevokeAllForAccount(ctx context.Context, accountID, exceptID, reason string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = $2, revoked_reason = $3
		 WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		   AND ($4 = '' OR id <> $4)`, accountID, now, reason, exceptID)
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}
	return int(n), nil
}

func (s *Store) ActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*authcore.RefreshToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC, id DESC`, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*authcore.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *Store) SessionByID(ctx context.Context, accountID, id string) (*authcore.RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE id = $1 AND account_id = $2`, id, accountID)
	return scanToken(row)
}
