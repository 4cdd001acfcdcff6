package authcore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Engine operations. Callers should match
// them with errors.Is; the engine may wrap them with request detail.
var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike, so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("authcore: invalid credentials")

	// ErrAccountLocked is returned while a lockout window is open. The
	// password is not checked in that state.
	ErrAccountLocked = errors.New("authcore: account temporarily locked")

	// ErrAccountSuspended is returned for suspended accounts that
	// presented a correct password.
	ErrAccountSuspended = errors.New("authcore: account suspended")

	// ErrAccountInactive is returned for deactivated accounts that
	// presented a correct password.
	ErrAccountInactive = errors.New("authcore: account inactive")

	// ErrInvalidSecondFactor is returned when a TOTP code or backup
	// code does not verify.
	ErrInvalidSecondFactor = errors.New("authcore: invalid second factor")

	// ErrMFANotEnabled is returned by operations that require an
	// enabled authenticator.
	ErrMFANotEnabled = errors.New("authcore: mfa not enabled")

	// ErrMFAAlreadyEnabled is returned when enrollment is started for
	// an account that already has an enabled authenticator.
	ErrMFAAlreadyEnabled = errors.New("authcore: mfa already enabled")

	// ErrMFANotPending is returned when enrollment confirmation
	// arrives without a pending enrollment.
	ErrMFANotPending = errors.New("authcore: no pending mfa enrollment")

	// ErrInvalidAccessToken is returned when an access token fails
	// verification for any reason.
	ErrInvalidAccessToken = errors.New("authcore: invalid access token")

	// ErrInvalidRefreshToken is returned whenever a refresh token
	// cannot be redeemed: unknown, expired, revoked, or reused. The
	// reasons are deliberately not distinguished for the caller.
	ErrInvalidRefreshToken = errors.New("authcore: invalid refresh token")

	// ErrSessionNotFound is returned when a session id does not
	// resolve for the requesting account. Sessions owned by other
	// accounts are reported as not found, never as forbidden.
	ErrSessionNotFound = errors.New("authcore: session not found")

	// ErrAccountNotFound is returned by stores when an account id or
	// email has no row. Login translates it to ErrInvalidCredentials.
	ErrAccountNotFound = errors.New("authcore: account not found")

	// ErrPermissionDenied is returned by permission-gated helpers.
	ErrPermissionDenied = errors.New("authcore: permission denied")

	// ErrLoginRateLimited is returned when the login throttle trips
	// before any credential work is done.
	ErrLoginRateLimited = errors.New("authcore: too many login attempts")

	// ErrRefreshRateLimited is returned when the refresh throttle
	// trips before the token is looked up.
	ErrRefreshRateLimited = errors.New("authcore: too many refresh attempts")

	// ErrBackupCodeRegenerationRequiresTOTP is returned when backup
	// code regeneration is attempted with anything but a fresh
	// authenticator code. A stolen backup code must not be able to
	// mint ten new ones.
	ErrBackupCodeRegenerationRequiresTOTP = errors.New("authcore: backup code regeneration requires a totp code")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("authcore: engine closed")
)

// ErrReuseDetected signals that a revoked refresh token was presented
// again and its whole family has been revoked in response. It wraps
// ErrInvalidRefreshToken, so transport layers that only match the
// generic sentinel keep responding uniformly while callers that care
// can still tell reuse apart.
var ErrReuseDetected = fmt.Errorf("authcore: refresh token reuse detected: %w", ErrInvalidRefreshToken)
