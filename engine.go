package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/horizonsync/authcore/jwt"
	"github.com/horizonsync/authcore/password"
	"github.com/horizonsync/authcore/permission"
)

// Engine is the authentication core. Build one with a Builder, share
// it across goroutines, and Close it on shutdown to flush the audit
// stream. All blocking work goes through the injected Store; the
// engine itself holds no connections.
type Engine struct {
	cfg     Config
	store   Store
	roles   RoleResolver
	limiter RateLimiter
	tokens  *jwt.Manager
	hasher  *password.Bcrypt
	totp    *totpManager
	audit   *auditDispatcher
	metrics *metrics
	now     func() time.Time
	closed  atomic.Bool
}

// Close flushes and stops the audit dispatcher. The engine rejects
// all operations afterwards.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.audit != nil {
		e.audit.close()
	}
	return nil
}

// AuditDropped reports how many audit events were discarded because
// the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// Metrics returns a snapshot of the engine counters. With metrics
// disabled every field is zero except AuditDropped.
func (e *Engine) Metrics() MetricsSnapshot {
	if e.metrics == nil {
		return MetricsSnapshot{AuditDropped: e.AuditDropped()}
	}
	return e.metrics.snapshot(e.AuditDropped())
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.inc(id)
	}
}

// LoginInput carries one login attempt. Client IP and user agent
// travel on the context, not here.
type LoginInput struct {
	Email        string
	Password     string
	SecondFactor *SecondFactor
}

// Login authenticates a credential pair and, when the account has an
// enabled authenticator, a second factor. Unknown emails and wrong
// passwords both come back as ErrInvalidCredentials after comparable
// work. A locked account fails fast with ErrAccountLocked before any
// password check. When MFA is required and no factor was supplied,
// Login succeeds with MFARequired set and no tokens; the client
// repeats the call with the factor filled in.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	email := NormalizeEmail(in.Email)
	ip, _ := ClientIPFromContext(ctx)

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, EventLoginRateLimited, false, "", "", ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
	}

	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			// Burn a hash comparison so unknown emails cost the
			// same as wrong passwords.
			e.hasher.CompareDummy(in.Password)
			return nil, e.failLogin(ctx, email, "", nil)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := e.now()
	if account.Locked(now) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, account.ID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{"locked_until": account.LockedUntil.UTC().Format(time.RFC3339)}
		})
		return nil, ErrAccountLocked
	}

	ok := false
	if passwordLengthOK(in.Password) {
		ok, err = e.hasher.Verify(in.Password, account.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
	} else {
		e.hasher.CompareDummy(in.Password)
	}
	if !ok {
		return nil, e.failLogin(ctx, email, account.ID, account)
	}

	switch account.Status {
	case StatusSuspended:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, account.ID, "", ErrAccountSuspended, nil)
		return nil, ErrAccountSuspended
	case StatusInactive:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, account.ID, "", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	usedFactor := FactorUnknown
	if account.MFA.State == MFAEnabled {
		if in.SecondFactor == nil || in.SecondFactor.Kind == FactorUnknown {
			e.metricInc(MetricMFAChallenge)
			e.emitAudit(ctx, EventMFAChallenge, true, account.ID, "", nil, nil)
			return &LoginResult{AccountID: account.ID, MFARequired: true}, nil
		}
		if err := e.verifySecondFactor(ctx, account, *in.SecondFactor, now); err != nil {
			e.metricInc(MetricMFAFailure)
			if e.limiter != nil {
				e.limiter.IncrementLogin(ctx, email, ip)
			}
			e.emitAudit(ctx, EventLoginFailure, false, account.ID, "", err, nil)
			return nil, err
		}
		usedFactor = in.SecondFactor.Kind
	}

	assignment, err := e.resolveRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	session, pair, err := e.issueSession(ctx, account.ID, assignment, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.ResetLoginState(ctx, account.ID, now, ip); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}
	if e.limiter != nil {
		e.limiter.ResetLogin(ctx, email, ip)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, account.ID, session.ID, nil, func() map[string]string {
		md := map[string]string{"device": session.DeviceName}
		switch usedFactor {
		case FactorTOTP:
			md["second_factor"] = "totp"
		case FactorBackupCode:
			md["second_factor"] = "backup_code"
		}
		return md
	})

	return &LoginResult{
		AccountID: account.ID,
		SessionID: session.ID,
		Tokens:    pair,
	}, nil
}

// failLogin is the shared wrong-credential tail: bump the failure
// counter, lock the account when the threshold is crossed, feed the
// throttle, and return the uniform error. account is nil when the
// email resolved to nothing.
func (e *Engine) failLogin(ctx context.Context, email, accountID string, account *Account) error {
	now := e.now()
	ip, _ := ClientIPFromContext(ctx)
	attempts := 0

	if account != nil {
		n, err := e.store.RecordLoginFailure(ctx, account.ID, now)
		if err != nil {
			return fmt.Errorf("record login failure: %w", err)
		}
		attempts = n
		if n >= e.cfg.Lockout.Threshold {
			until := now.Add(e.cfg.Lockout.Duration)
			if err := e.store.LockAccount(ctx, account.ID, until); err != nil {
				return fmt.Errorf("lock account: %w", err)
			}
			e.metricInc(MetricAccountLockout)
			e.emitAudit(ctx, EventAccountLocked, true, account.ID, "", nil, func() map[string]string {
				return map[string]string{
					"attempts":     fmt.Sprintf("%d", n),
					"locked_until": until.UTC().Format(time.RFC3339),
				}
			})
		}
	}

	if e.limiter != nil {
		e.limiter.IncrementLogin(ctx, email, ip)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailure, false, accountID, "", ErrInvalidCredentials, func() map[string]string {
		if attempts == 0 {
			return nil
		}
		return map[string]string{"attempts": fmt.Sprintf("%d", attempts)}
	})
	return ErrInvalidCredentials
}

func (e *Engine) resolveRoles(ctx context.Context, accountID string) (*RoleAssignment, error) {
	if e.roles == nil {
		return &RoleAssignment{}, nil
	}
	assignment, err := e.roles.Resolve(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	if assignment == nil {
		assignment = &RoleAssignment{}
	}
	return assignment, nil
}

// VerifyAccess validates an access token and returns its identity.
// This is the per-request hot path; it touches no store.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*Identity, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	start := time.Now()
	claims, err := e.tokens.ParseAccess(token)
	if e.metrics != nil {
		e.metrics.verify.observe(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	id := &Identity{
		AccountID:   claims.Subject,
		OrgID:       claims.OrgID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		SessionID:   claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Allows reports whether the identity's permission snapshot grants
// code, wildcards included.
func (e *Engine) Allows(id *Identity, code string) bool {
	if id == nil {
		return false
	}
	return permission.Allowed(id.Permissions, code)
}

// RequirePermission is Allows as an error, for handler guards.
func (e *Engine) RequirePermission(id *Identity, code string) error {
	if !e.Allows(id, code) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, code)
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so lookups and
// throttle keys agree on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func passwordLengthOK(pw string) bool {
	return len(pw) > 0 && len(pw) <= 72
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrSessionNotFound)
}
