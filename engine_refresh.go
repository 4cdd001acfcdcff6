package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// hashRefreshSecret is the storage form of a refresh token. Only this
// digest is ever persisted; a database leak yields nothing that can
// be presented back.
func hashRefreshSecret(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// refreshThrottleKey prefers the client IP so one noisy client cannot
// starve others; without an IP it falls back to a prefix of the token
// hash.
func refreshThrottleKey(ctx context.Context, hash string) string {
	if ip, ok := ClientIPFromContext(ctx); ok {
		return ip
	}
	return hash[:16]
}

// Refresh redeems a refresh token for a fresh access/refresh pair and
// retires the presented token. The token is treated as opaque: it is
// resolved by hash against stored records, never by decoding claims.
//
// A token that resolves to nothing, or to an expired record, fails
// with ErrInvalidRefreshToken and nothing else happens. A token that
// resolves to a revoked, unexpired record is evidence of reuse: the
// whole family is revoked before the same error surfaces. Concurrent
// presentations of one token race on the store's conditional rotate;
// exactly one wins, and the loser is handled as reuse.
//
// Role and permission claims are re-resolved on every rotation, so an
// access token's snapshot is never staler than one rotation interval.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	hash := hashRefreshSecret(refreshToken)
	key := refreshThrottleKey(ctx, hash)

	if e.limiter != nil {
		if err := e.limiter.CheckRefresh(ctx, key); err != nil {
			e.metricInc(MetricRefreshRateLimited)
			e.emitAudit(ctx, EventRefreshRejected, false, "", "", ErrRefreshRateLimited, nil)
			return nil, ErrRefreshRateLimited
		}
	}

	now := e.now()

	rec, err := e.store.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if isNotFound(err) {
			return nil, e.rejectRefresh(ctx, key, "", "")
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	if rec.Expired(now) {
		return nil, e.rejectRefresh(ctx, key, rec.AccountID, rec.ID)
	}
	if rec.RevokedAt != nil {
		return nil, e.handleReuse(ctx, key, rec, now)
	}

	account, err := e.store.AccountByID(ctx, rec.AccountID)
	if err != nil {
		if isNotFound(err) {
			return nil, e.rejectRefresh(ctx, key, rec.AccountID, rec.ID)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.Status == StatusSuspended || account.Status == StatusInactive {
		return nil, e.rejectRefresh(ctx, key, rec.AccountID, rec.ID)
	}

	assignment, err := e.resolveRoles(ctx, rec.AccountID)
	if err != nil {
		return nil, err
	}

	next, pair, err := e.mintSession(ctx, rec.AccountID, rec.FamilyID, assignment, now)
	if err != nil {
		return nil, err
	}

	won, err := e.store.RotateRefreshToken(ctx, rec.ID, ReasonRotated, now, next)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !won {
		// Another redemption of the same token won the race. For
		// this presentation that is indistinguishable from replay.
		return nil, e.handleReuse(ctx, key, rec, now)
	}

	if err := e.enforceSessionCap(ctx, rec.AccountID, now); err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshRotated, true, rec.AccountID, next.ID, nil, func() map[string]string {
		return map[string]string{"rotated_from": rec.ID, "family": rec.FamilyID}
	})
	return pair, nil
}

// rejectRefresh is the plain-invalid tail: count, audit, throttle,
// uniform error. No family is touched.
func (e *Engine) rejectRefresh(ctx context.Context, key, accountID, sessionID string) error {
	if e.limiter != nil {
		e.limiter.IncrementRefresh(ctx, key)
	}
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, EventRefreshRejected, false, accountID, sessionID, ErrInvalidRefreshToken, nil)
	return ErrInvalidRefreshToken
}

// handleReuse revokes every live token in the family and surfaces the
// same error as any other invalid token.
func (e *Engine) handleReuse(ctx context.Context, key string, rec *RefreshToken, now time.Time) error {
	revoked, err := e.store.RevokeFamily(ctx, rec.FamilyID, ReasonReuseDetected, now)
	if err != nil {
		return fmt.Errorf("revoke token family: %w", err)
	}
	if e.limiter != nil {
		e.limiter.IncrementRefresh(ctx, key)
	}
	e.metricInc(MetricRefreshReuse)
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, EventRefreshReuseDetected, true, rec.AccountID, rec.ID, nil, func() map[string]string {
		return map[string]string{
			"family":  rec.FamilyID,
			"revoked": strconv.Itoa(revoked),
		}
	})
	return ErrReuseDetected
}

// Logout revokes the session behind one refresh token. It is
// idempotent and silent about tokens that do not resolve or belong to
// someone else; logging out is not an oracle.
func (e *Engine) Logout(ctx context.Context, accountID, refreshToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	rec, err := e.store.RefreshTokenByHash(ctx, hashRefreshSecret(refreshToken))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("load refresh token: %w", err)
	}
	if rec.AccountID != accountID || rec.RevokedAt != nil {
		return nil
	}

	now := e.now()
	if err := e.store.RevokeRefreshToken(ctx, rec.ID, ReasonLogout, now); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, EventLogout, true, accountID, rec.ID, nil, nil)
	return nil
}

// LogoutAll revokes every active session of the account and returns
// how many were revoked. A non-empty exceptSessionID survives, which
// is how "log out everywhere else" keeps the calling session alive.
func (e *Engine) LogoutAll(ctx context.Context, accountID, exceptSessionID string) (int, error) {
	if e.closed.Load() {
		return 0, ErrEngineClosed
	}

	now := e.now()
	revoked, err := e.store.RevokeAllForAccount(ctx, accountID, exceptSessionID, ReasonLogoutAll, now)
	if err != nil {
		return 0, fmt.Errorf("revoke account sessions: %w", err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, EventLogoutAll, true, accountID, exceptSessionID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})
	return revoked, nil
}
