package authcore

import (
	"context"
	"errors"

	"github.com/horizonsync/authcore/internal/ids"
)

// Audit event types. One constant per distinct security outcome; the
// Success flag on the event separates attempt from completion where
// both share a type.
const (
	EventLoginSuccess           = "login_success"
	EventLoginFailure           = "login_failure"
	EventLoginRateLimited       = "login_rate_limited"
	EventAccountLocked          = "account_locked"
	EventMFAChallenge           = "mfa_challenge"
	EventRefreshRotated         = "refresh_rotated"
	EventRefreshRejected        = "refresh_rejected"
	EventRefreshReuseDetected   = "refresh_reuse_detected"
	EventLogout                 = "logout"
	EventLogoutAll              = "logout_all"
	EventSessionRevoked         = "session_revoked"
	EventSessionLimitEvicted    = "session_limit_evicted"
	EventMFAEnrollmentStarted   = "mfa_enrollment_started"
	EventMFAEnabled             = "mfa_enabled"
	EventMFADisabled            = "mfa_disabled"
	EventBackupCodeUsed         = "backup_code_used"
	EventBackupCodesRegenerated = "backup_codes_regenerated"
)

// emitAudit assembles and dispatches one event. The metadata builder
// runs only when auditing is live, so hot paths never pay for maps
// nobody will read.
func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, sessionID string, err error, metadata func() map[string]string) {
	if e.audit == nil {
		return
	}
	ev := AuditEvent{
		ID:        ids.New(),
		Time:      e.now(),
		Type:      eventType,
		AccountID: accountID,
		SessionID: sessionID,
		Success:   success,
	}
	if ip, ok := ClientIPFromContext(ctx); ok {
		ev.IP = ip
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		ev.RequestID = rid
	}
	if err != nil {
		ev.Code = auditErrorCode(err)
	}
	if metadata != nil {
		ev.Metadata = metadata()
	}
	e.audit.emit(ev)
}

// auditErrorCode collapses engine errors into stable short codes for
// audit consumers. Unknown errors, store failures included, become
// internal_error; the audit stream never leaks driver detail.
func auditErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrReuseDetected):
		return "reuse_detected"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrInvalidSecondFactor):
		return "invalid_second_factor"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMFANotEnabled):
		return "mfa_not_enabled"
	case errors.Is(err, ErrMFAAlreadyEnabled):
		return "mfa_already_enabled"
	case errors.Is(err, ErrMFANotPending):
		return "mfa_not_pending"
	case errors.Is(err, ErrBackupCodeRegenerationRequiresTOTP):
		return "regeneration_requires_totp"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	default:
		return "internal_error"
	}
}
