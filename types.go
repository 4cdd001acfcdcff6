package authcore

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// AccountStatus is the administrative state of an account.
type AccountStatus string

const (
	StatusActive              AccountStatus = "active"
	StatusInactive            AccountStatus = "inactive"
	StatusSuspended           AccountStatus = "suspended"
	StatusPendingVerification AccountStatus = "pending_verification"
)

// MFAState tracks authenticator enrollment. Pending means a secret has
// been provisioned but never confirmed with a valid code; a pending
// secret carries no weight at login.
type MFAState string

const (
	MFADisabled MFAState = "disabled"
	MFAPending  MFAState = "pending"
	MFAEnabled  MFAState = "enabled"
)

// MFA is the authenticator state stored on an account.
type MFA struct {
	State  MFAState
	Secret string
}

// Account is the credential record the engine authenticates against.
// PasswordHash is a bcrypt hash; the cleartext never reaches a store.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Status       AccountStatus
	FailedLogins int
	LockedUntil  *time.Time
	LastLoginAt  *time.Time
	LastLoginIP  string
	MFA          MFA
	CreatedAt    time.Time
}

// Locked reports whether a lockout window is still open at now.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Revocation reasons recorded on refresh token rows.
const (
	ReasonRotated       = "rotated"
	ReasonLogout        = "user_logout"
	ReasonLogoutAll     = "user_logout_all"
	ReasonReuseDetected = "reuse_detected"
	ReasonSessionLimit  = "session_limit_exceeded"
	ReasonRevokedByUser = "user_revoked"
)

// RefreshToken is one stored refresh credential. Rows are never
// deleted; redeemed and invalidated rows keep their revocation reason
// so reuse of an old token can be recognized for the family's
// lifetime. TokenHash is the SHA-256 of the issued token; the token
// itself is never stored.
type RefreshToken struct {
	ID            string
	AccountID     string
	TokenHash     string
	FamilyID      string
	DeviceName    string
	DeviceType    string
	Browser       string
	IP            string
	UserAgent     string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	LastUsedAt    *time.Time
	RevokedAt     *time.Time
	RevokedReason string
}

// Active reports whether the token can still be redeemed at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Expired reports whether the token's lifetime has passed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// SessionInfo is one entry in an account's session listing.
type SessionInfo struct {
	ID         string
	DeviceName string
	DeviceType string
	Browser    string
	IP         string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Current    bool
}

// TokenPair is an issued access/refresh pair. ExpiresIn is the access
// token lifetime in seconds, for transports that relay it verbatim.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// LoginResult is the outcome of a successful credential check. When
// the account has an enabled authenticator and no second factor was
// presented, MFARequired is set and no tokens are issued; the caller
// repeats the login with a factor attached.
type LoginResult struct {
	AccountID   string
	MFARequired bool
	SessionID   string
	Tokens      *TokenPair
}

// MFAEnrollment is handed back when enrollment starts. The secret and
// backup codes appear in cleartext here and nowhere else; only hashes
// of the backup codes are stored.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
	BackupCodes     []string
}

// SecondFactorKind discriminates how a submitted second factor should
// be verified.
type SecondFactorKind uint8

const (
	FactorUnknown SecondFactorKind = iota
	FactorTOTP
	FactorBackupCode
)

// SecondFactor is a classified second-factor submission.
type SecondFactor struct {
	Kind SecondFactorKind
	Code string
}

// ClassifySecondFactor decides how a raw code should be checked: six
// digits reads as an authenticator code, anything else as a backup
// code. Backup codes never collide with that shape because their
// alphabet has no digits 0 or 1 and they are eight characters long.
func ClassifySecondFactor(code string) SecondFactor {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) == 6 && isDigits(trimmed) {
		return SecondFactor{Kind: FactorTOTP, Code: trimmed}
	}
	if trimmed == "" {
		return SecondFactor{Kind: FactorUnknown}
	}
	return SecondFactor{Kind: FactorBackupCode, Code: trimmed}
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// RoleAssignment is the org membership resolved for an account at
// token issue time. Permissions are snapshotted into the access token
// and go stale until the next rotation; that window is bounded by the
// access TTL.
type RoleAssignment struct {
	OrgID       string
	Role        string
	Permissions []string
}

// Identity is the verified content of an access token.
type Identity struct {
	AccountID   string
	OrgID       string
	Role        string
	Permissions []string
	SessionID   string
	ExpiresAt   time.Time
}

// AccountStore persists accounts, their lockout counters, and their
// authenticator state. Implementations receive the engine's clock
// through explicit now arguments and must not read the wall clock.
type AccountStore interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)

	// RecordLoginFailure increments the failure counter and returns
	// the new count.
	RecordLoginFailure(ctx context.Context, accountID string, now time.Time) (int, error)
	LockAccount(ctx context.Context, accountID string, until time.Time) error

	// ResetLoginState clears the failure counter and any lock, and
	// records a successful login at now from ip.
	ResetLoginState(ctx context.Context, accountID string, now time.Time, ip string) error

	SetMFA(ctx context.Context, accountID string, mfa MFA) error

	// ReplaceBackupCodes swaps the full set of stored hashes,
	// discarding used and unused codes alike.
	ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error

	// ConsumeBackupCode marks the code with the given hash used, if it
	// exists and is unused. The check and the mark are one atomic
	// step; two concurrent submissions of the same code must not both
	// return true.
	ConsumeBackupCode(ctx context.Context, accountID, hash string, now time.Time) (bool, error)

	// BackupCodeCount returns how many unused codes remain.
	BackupCodeCount(ctx context.Context, accountID string) (int, error)
}

// RefreshTokenStore persists refresh token rows. Revocation updates
// rows in place; nothing here deletes.
type RefreshTokenStore interface {
	StoreRefreshToken(ctx context.Context, rec *RefreshToken) error

	// RefreshTokenByHash resolves a presented token by its SHA-256
	// hash regardless of revocation state, returning
	// ErrSessionNotFound when no row matches.
	RefreshTokenByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// RotateRefreshToken revokes the row oldID with the given reason,
	// stamps its LastUsedAt, and inserts next, all atomically and only
	// if oldID is still unrevoked. It returns false without side
	// effects when another rotation got there first.
	RotateRefreshToken(ctx context.Context, oldID, reason string, now time.Time, next *RefreshToken) (bool, error)

	RevokeRefreshToken(ctx context.Context, id, reason string, now time.Time) error

	// RevokeFamily revokes every unrevoked row in a family and
	// returns how many it touched.
	RevokeFamily(ctx context.Context, familyID, reason string, now time.Time) (int, error)

	// RevokeAllForAccount revokes every active row of the account,
	// skipping exceptID when non-empty.
	RevokeAllForAccount(ctx context.Context, accountID, exceptID, reason string, now time.Time) (int, error)

	// ActiveSessions lists unrevoked, unexpired rows newest first.
	ActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*RefreshToken, error)

	// SessionByID resolves one row scoped to the owning account;
	// other accounts' rows are ErrSessionNotFound.
	SessionByID(ctx context.Context, accountID, id string) (*RefreshToken, error)
}

// Store is the full persistence surface the engine builds on.
type Store interface {
	AccountStore
	RefreshTokenStore
}

// RoleResolver supplies the org, role, and permission set minted into
// access tokens. It runs on every issue and every rotation, so role
// changes take effect at the next rotation without touching tokens
// already in flight.
type RoleResolver interface {
	Resolve(ctx context.Context, accountID string) (*RoleAssignment, error)
}

// RateLimiter throttles login and refresh traffic ahead of any
// credential or token work. A nil limiter disables throttling.
type RateLimiter interface {
	CheckLogin(ctx context.Context, email, ip string) error
	IncrementLogin(ctx context.Context, email, ip string) error
	ResetLogin(ctx context.Context, email, ip string) error
	CheckRefresh(ctx context.Context, key string) error
	IncrementRefresh(ctx context.Context, key string) error
}
