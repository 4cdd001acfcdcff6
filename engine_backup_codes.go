package authcore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Backup codes are eight characters from a 32-character alphabet with
// the lookalikes 0, 1, I, and O removed, shown to the user with a
// hyphen in the middle. The alphabet size divides 256, so indexing
// random bytes by modulo stays uniform.
const (
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeLength   = 8
)

func newBackupCode() (string, error) {
	buf := make([]byte, backupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}
	code := make([]byte, backupCodeLength)
	for i, b := range buf {
		code[i] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
	}
	return string(code[:4]) + "-" + string(code[4:]), nil
}

// canonicalizeBackupCode uppercases and strips hyphens and spaces, so
// users can type codes however their password manager mangled them.
func canonicalizeBackupCode(code string) string {
	var sb strings.Builder
	sb.Grow(len(code))
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// hashBackupCode binds the digest to the account so identical codes
// issued to two accounts never share a stored hash.
func hashBackupCode(accountID, canonical string) string {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// generateBackupCodes returns the cleartext codes for the user and
// the hashes for the store, in matching order.
func (e *Engine) generateBackupCodes(accountID string) (codes, hashes []string, err error) {
	n := e.cfg.MFA.BackupCodes
	codes = make([]string, 0, n)
	hashes = make([]string, 0, n)
	for i := 0; i < n; i++ {
		code, err := newBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hashBackupCode(accountID, canonicalizeBackupCode(code)))
	}
	return codes, hashes, nil
}

// consumeBackupCode burns one code. The store does the
// lookup-and-mark atomically, so two concurrent submissions of the
// same code cannot both pass.
func (e *Engine) consumeBackupCode(ctx context.Context, accountID, code string, now time.Time) error {
	canonical := canonicalizeBackupCode(code)
	if len(canonical) != backupCodeLength {
		return ErrInvalidSecondFactor
	}
	ok, err := e.store.ConsumeBackupCode(ctx, accountID, hashBackupCode(accountID, canonical), now)
	if err != nil {
		return fmt.Errorf("consume backup code: %w", err)
	}
	if !ok {
		return ErrInvalidSecondFactor
	}
	e.metricInc(MetricBackupCodeUsed)
	e.emitAudit(ctx, EventBackupCodeUsed, true, accountID, "", nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole set, invalidating every
// code issued before, used or not. Only a live authenticator code
// authorizes this; accepting a backup code here would let whoever
// stole one code mint themselves ten more.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.MFA.State != MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	factor := ClassifySecondFactor(totpCode)
	if factor.Kind != FactorTOTP {
		return nil, ErrBackupCodeRegenerationRequiresTOTP
	}
	ok, err := e.totp.Verify(account.MFA.Secret, factor.Code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventBackupCodesRegenerated, false, accountID, "", ErrInvalidSecondFactor, nil)
		return nil, ErrInvalidSecondFactor
	}

	codes, hashes, err := e.generateBackupCodes(accountID)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	e.metricInc(MetricBackupCodesRegenerated)
	e.emitAudit(ctx, EventBackupCodesRegenerated, true, accountID, "", nil, nil)
	return codes, nil
}

// BackupCodeStatus reports how many unused backup codes remain. The
// codes themselves are unrecoverable; only hashes are stored.
func (e *Engine) BackupCodeStatus(ctx context.Context, accountID string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load account: %w", err)
	}
	if account.MFA.State != MFAEnabled {
		return 0, ErrMFANotEnabled
	}
	n, err := e.store.BackupCodeCount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return n, nil
}
