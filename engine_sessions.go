package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/horizonsync/authcore/internal/device"
	"github.com/horizonsync/authcore/internal/ids"
	"github.com/horizonsync/authcore/jwt"
)

// mintSession builds the token pair and the storable record for one
// new session. The record id doubles as the access token's jti, which
// is what lets a bearer of an access token be tied back to the
// session that issued it.
func (e *Engine) mintSession(ctx context.Context, accountID, familyID string, assignment *RoleAssignment, now time.Time) (*RefreshToken, *TokenPair, error) {
	sessionID := ids.New()

	refreshJWT, refreshExp, err := e.tokens.MintRefresh(jwt.RefreshInput{
		Subject:  accountID,
		TokenID:  sessionID,
		FamilyID: familyID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mint refresh token: %w", err)
	}

	accessJWT, _, err := e.tokens.MintAccess(jwt.AccessInput{
		Subject:     accountID,
		OrgID:       assignment.OrgID,
		Role:        assignment.Role,
		Permissions: assignment.Permissions,
		SessionID:   sessionID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mint access token: %w", err)
	}

	ua, _ := UserAgentFromContext(ctx)
	ip, _ := ClientIPFromContext(ctx)
	info := device.Parse(ua)

	rec := &RefreshToken{
		ID:         sessionID,
		AccountID:  accountID,
		TokenHash:  hashRefreshSecret(refreshJWT),
		FamilyID:   familyID,
		DeviceName: info.Name,
		DeviceType: info.Type,
		Browser:    info.Browser,
		IP:         ip,
		UserAgent:  ua,
		ExpiresAt:  refreshExp,
		CreatedAt:  now,
	}
	pair := &TokenPair{
		AccessToken:  accessJWT,
		RefreshToken: refreshJWT,
		TokenType:    "bearer",
		ExpiresIn:    int64(e.cfg.JWT.AccessTTL.Seconds()),
	}
	return rec, pair, nil
}

// issueSession mints and persists a brand new session in its own
// fresh token family, then trims the account back under the session
// cap.
func (e *Engine) issueSession(ctx context.Context, accountID string, assignment *RoleAssignment, now time.Time) (*RefreshToken, *TokenPair, error) {
	rec, pair, err := e.mintSession(ctx, accountID, uuid.NewString(), assignment, now)
	if err != nil {
		return nil, nil, err
	}
	if err := e.store.StoreRefreshToken(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("store refresh token: %w", err)
	}
	if err := e.enforceSessionCap(ctx, accountID, now); err != nil {
		return nil, nil, err
	}
	return rec, pair, nil
}

// enforceSessionCap revokes the oldest active sessions until the
// account fits under MaxPerAccount again. The newest sessions always
// survive; logging in on an eleventh device silently retires the
// first.
func (e *Engine) enforceSessionCap(ctx context.Context, accountID string, now time.Time) error {
	sessions, err := e.store.ActiveSessions(ctx, accountID, now)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	limit := e.cfg.Sessions.MaxPerAccount
	if len(sessions) <= limit {
		return nil
	}
	for _, s := range sessions[limit:] {
		if err := e.store.RevokeRefreshToken(ctx, s.ID, ReasonSessionLimit, now); err != nil {
			return fmt.Errorf("evict session %s: %w", s.ID, err)
		}
		e.metricInc(MetricSessionEvicted)
		e.emitAudit(ctx, EventSessionLimitEvicted, true, accountID, s.ID, nil, func() map[string]string {
			return map[string]string{"device": s.DeviceName}
		})
	}
	return nil
}

// ListSessions returns the account's active sessions, newest first.
// currentSessionID, usually the jti of the access token making the
// call, marks which entry is the caller's own.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]SessionInfo, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	rows, err := e.store.ActiveSessions(ctx, accountID, e.now())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		lastUsed := row.CreatedAt
		if row.LastUsedAt != nil {
			lastUsed = *row.LastUsedAt
		}
		out = append(out, SessionInfo{
			ID:         row.ID,
			DeviceName: row.DeviceName,
			DeviceType: row.DeviceType,
			Browser:    row.Browser,
			IP:         row.IP,
			CreatedAt:  row.CreatedAt,
			LastUsedAt: lastUsed,
			Current:    row.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession revokes one of the caller's own sessions. Ids that
// resolve to nothing, to an expired or already revoked session, or to
// another account's session all come back ErrSessionNotFound; there
// is no way to probe other people's session ids.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	rec, err := e.store.SessionByID(ctx, accountID, sessionID)
	if err != nil {
		if isNotFound(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}

	now := e.now()
	if !rec.Active(now) {
		return ErrSessionNotFound
	}

	if err := e.store.RevokeRefreshToken(ctx, rec.ID, ReasonRevokedByUser, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, EventSessionRevoked, true, accountID, rec.ID, nil, nil)
	return nil
}
