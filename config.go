package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/horizonsync/authcore/jwt"
	"github.com/horizonsync/authcore/password"
)

// Config carries every tunable of the engine. Zero values are filled
// from DefaultConfig by the builder, except signing keys, which must
// always be supplied by the caller.
type Config struct {
	JWT      jwt.Config
	Password password.Config
	Lockout  LockoutConfig
	MFA      MFAConfig
	Sessions SessionsConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/* ==================== Lockout ==================== */

// LockoutConfig controls failed-login lockout. After Threshold
// consecutive failures the account locks for Duration; any successful
// login resets the counter.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/* ==================== MFA ==================== */

// MFAConfig controls TOTP enrollment and verification. Codes are
// always six digits; Period and Skew follow RFC 6238 semantics, with
// Skew counted in steps on each side of now.
type MFAConfig struct {
	Issuer      string
	Period      uint
	Skew        uint
	BackupCodes int
}

/* ==================== Sessions ==================== */

// SessionsConfig bounds concurrent sessions per account. When a new
// refresh token would push an account past MaxPerAccount, the oldest
// active sessions are revoked until the count fits again.
type SessionsConfig struct {
	MaxPerAccount int
}

/* ==================== Audit ==================== */

// AuditConfig shapes the async audit dispatcher. With DropIfFull set,
// events beyond BufferSize are counted and discarded instead of
// blocking the hot path; CloseTimeout bounds the drain on shutdown.
type AuditConfig struct {
	BufferSize   int
	DropIfFull   bool
	CloseTimeout time.Duration
}

/* ==================== Metrics ==================== */

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Signing keys are
// left empty on purpose.
func DefaultConfig() Config {
	return Config{
		JWT: jwt.Config{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "authcore",
			RequireIAT:    true,
			MaxFutureIAT:  2 * time.Minute,
		},
		Password: password.Config{Cost: 12},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		MFA: MFAConfig{
			Issuer:      "Horizon Sync",
			Period:      30,
			Skew:        1,
			BackupCodes: 10,
		},
		Sessions: SessionsConfig{MaxPerAccount: 10},
		Audit: AuditConfig{
			BufferSize:   256,
			DropIfFull:   true,
			CloseTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate rejects configurations the engine cannot run with. JWT key
// material is validated separately by jwt.NewManager.
func (c *Config) Validate() error {
	if c.Lockout.Threshold < 1 {
		return errors.New("authcore: lockout threshold must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("authcore: lockout duration must be positive")
	}
	if c.MFA.Period < 15 {
		return fmt.Errorf("authcore: totp period %ds too short", c.MFA.Period)
	}
	if c.MFA.Skew > 2 {
		return fmt.Errorf("authcore: totp skew %d too permissive", c.MFA.Skew)
	}
	if c.MFA.Issuer == "" {
		return errors.New("authcore: mfa issuer must be set")
	}
	if c.MFA.BackupCodes < 1 || c.MFA.BackupCodes > 50 {
		return fmt.Errorf("authcore: backup code count %d out of range [1,50]", c.MFA.BackupCodes)
	}
	if c.Sessions.MaxPerAccount < 1 {
		return errors.New("authcore: session cap must be at least 1")
	}
	if c.Audit.BufferSize < 1 {
		return errors.New("authcore: audit buffer size must be at least 1")
	}
	return nil
}

// cloneConfig copies c deeply enough that the engine's view cannot be
// mutated through slices or maps the caller retained.
func cloneConfig(c Config) Config {
	out := c
	if c.JWT.PrivateKey != nil {
		out.JWT.PrivateKey = append([]byte(nil), c.JWT.PrivateKey...)
	}
	if c.JWT.PublicKey != nil {
		out.JWT.PublicKey = append([]byte(nil), c.JWT.PublicKey...)
	}
	if c.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(c.JWT.VerifyKeys))
		for kid, key := range c.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = append([]byte(nil), key...)
		}
	}
	return out
}
