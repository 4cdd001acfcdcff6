package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/horizonsync/authcore"
)

const accountColumns = `id, email, password_hash, status, failed_logins,
	locked_until, last_login_at, last_login_ip, mfa_state, mfa_secret, created_at`

func scanAccount(row *sql.Row) (*authcore.Account, error) {
	var (
		a           authcore.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Status, &a.FailedLogins,
		&lockedUntil, &lastLogin, &a.LastLoginIP, &a.MFA.State, &a.MFA.Secret, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authcore.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.LockedUntil = timePtr(lockedUntil)
	a.LastLoginAt = timePtr(lastLogin)
	return &a, nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *Store) AccountByID(ctx context.Context, id string) (*authcore.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// CreateAccount inserts a new account row. The zero values of the MFA
// and lockout columns come from the schema defaults.
func (s *Store) CreateAccount(ctx context.Context, a *authcore.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, status, mfa_state, mfa_secret, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, authcore.NormalizeEmail(a.Email), a.PasswordHash, a.Status,
		a.MFA.State, a.MFA.Secret, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, accountID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE accounts SET failed_logins = failed_logins + 1
		 WHERE id = $1 RETURNING failed_logins`, accountID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, authcore.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return n, nil
}

func (s *Store) LockAccount(ctx context.Context, accountID string, until time.Time) error {
	return s.execAccount(ctx,
		`UPDATE accounts SET locked_until = $2 WHERE id = $1`, accountID, until)
}

func (s *Store) ResetLoginState(ctx context.Context, accountID string, now time.Time, ip string) error {
	return s.execAccount(ctx,
		`UPDATE accounts SET failed_logins = 0, locked_until = NULL,
		 last_login_at = $2, last_login_ip = $3 WHERE id = $1`, accountID, now, ip)
}

func (s *Store) SetMFA(ctx context.Context, accountID string, mfa authcore.MFA) error {
	return s.execAccount(ctx,
		`UPDATE accounts SET mfa_state = $2, mfa_secret = $3 WHERE id = $1`,
		accountID, mfa.State, mfa.Secret)
}

// ReplaceBackupCodes swaps the whole set in one transaction so a
// crash can never leave a mix of old and new codes behind.
func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM backup_codes WHERE account_id = $1`, accountID); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}
		for _, h := range hashes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO backup_codes (account_id, code_hash) VALUES ($1, $2)`,
				accountID, h); err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}
		return nil
	})
}

// ConsumeBackupCode marks the code used and reports whether this call
// was the one that consumed it. The used_at guard in the WHERE clause
// makes concurrent redemption of the same code a single-winner race.
func (s *Store) ConsumeBackupCode(ctx context.Context, accountID, hash string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_codes SET used_at = $3
		 WHERE account_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		accountID, hash, now)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return n == 1, nil
}

func (s *Store) BackupCodeCount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE account_id = $1 AND used_at IS NULL`,
		accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}

func (s *Store) execAccount(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
