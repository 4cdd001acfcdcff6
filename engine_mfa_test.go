package authcore_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/horizonsync/authcore"
)

func TestMFAEnrollmentLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	enr, err := e.engine.BeginMFAEnrollment(e.ctx(), "acct-1", "correct horse battery")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if enr.Secret == "" || !strings.HasPrefix(enr.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("bad enrollment material: %+v", enr)
	}
	if !strings.HasPrefix(enr.QRCode, "data:image/png;base64,") {
		t.Fatalf("qr code is not a png data url: %.40q", enr.QRCode)
	}
	if len(enr.BackupCodes) != 10 {
		t.Fatalf("backup codes = %d, want 10", len(enr.BackupCodes))
	}
	for _, code := range enr.BackupCodes {
		if len(code) != 9 || code[4] != '-' {
			t.Fatalf("backup code format: %q", code)
		}
	}

	// Pending enrollment carries no weight at login.
	res := e.mustLogin("ana@example.com", "correct horse battery")
	if res.MFARequired {
		t.Fatal("pending enrollment gated login")
	}

	// A wrong code does not confirm.
	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", "000000"); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("wrong confirm code: %v", err)
	}

	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", e.totpCode(enr.Secret, 0)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Now the gate is up.
	res, err = e.login("ana@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login after enable: %v", err)
	}
	if !res.MFARequired || res.Tokens != nil {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}

	// Double begin and double confirm are rejected.
	if _, err := e.engine.BeginMFAEnrollment(e.ctx(), "acct-1", "correct horse battery"); !errors.Is(err, authcore.ErrMFAAlreadyEnabled) {
		t.Fatalf("begin while enabled: %v", err)
	}
	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", e.totpCode(enr.Secret, 0)); !errors.Is(err, authcore.ErrMFAAlreadyEnabled) {
		t.Fatalf("confirm while enabled: %v", err)
	}
}

func TestMFAEnrollmentRestartReplacesSecret(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	first, err := e.engine.BeginMFAEnrollment(e.ctx(), "acct-1", "correct horse battery")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.engine.BeginMFAEnrollment(e.ctx(), "acct-1", "correct horse battery")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("restart reused the secret")
	}

	// The first secret died with the restart.
	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", e.totpCode(first.Secret, 0)); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("stale secret confirmed: %v", err)
	}
	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", e.totpCode(second.Secret, 0)); err != nil {
		t.Fatalf("fresh secret: %v", err)
	}
}

func TestMFAEnrollmentRequiresPassword(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	if _, err := e.engine.BeginMFAEnrollment(e.ctx(), "acct-1", "not the password"); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("begin with wrong password: %v", err)
	}
	if err := e.engine.ConfirmMFAEnrollment(e.ctx(), "acct-1", "123456"); !errors.Is(err, authcore.ErrMFANotPending) {
		t.Fatalf("confirm without enrollment: %v", err)
	}
}

func TestMFALoginWindow(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	secret, _ := e.enableMFA("acct-1", "correct horse battery")

	cases := []struct {
		name   string
		offset int
		ok     bool
	}{
		{"current step", 0, true},
		{"one step behind", -1, true},
		{"one step ahead", 1, true},
		{"two steps behind", -2, false},
		{"two steps ahead", 2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.loginWithFactor("ana@example.com", "correct horse battery", e.totpCode(secret, tc.offset))
			if tc.ok {
				if err != nil || res.Tokens == nil {
					t.Fatalf("valid code rejected: %v", err)
				}
				return
			}
			if !errors.Is(err, authcore.ErrInvalidSecondFactor) {
				t.Fatalf("drifted code: %v", err)
			}
		})
	}
}

func TestMFABackupCodeLogin(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	_, codes := e.enableMFA("acct-1", "correct horse battery")

	// Sloppy formatting is forgiven.
	sloppy := " " + strings.ToLower(strings.ReplaceAll(codes[0], "-", "")) + " "
	res, err := e.loginWithFactor("ana@example.com", "correct horse battery", sloppy)
	if err != nil || res.Tokens == nil {
		t.Fatalf("backup code login: %v", err)
	}

	// Single use: the same code never works twice.
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", codes[0]); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("spent code accepted: %v", err)
	}

	// But its siblings are unaffected.
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", codes[1]); err != nil {
		t.Fatalf("second backup code: %v", err)
	}

	n, err := e.engine.BackupCodeStatus(e.ctx(), "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("remaining codes = %d, want 8", n)
	}
}

func TestMFAFailureDoesNotCountTowardLockout(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	e.enableMFA("acct-1", "correct horse battery")

	for i := 0; i < 6; i++ {
		if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", "000000"); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	// Six bad codes later the password path is still open, so the
	// lockout counter never moved.
	res, err := e.login("ana@example.com", "correct horse battery")
	if err != nil || !res.MFARequired {
		t.Fatalf("account locked by code failures: %v", err)
	}
}

func TestDisableMFA(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	secret, codes := e.enableMFA("acct-1", "correct horse battery")

	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "wrong password", authcore.ClassifySecondFactor(e.totpCode(secret, 0))); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("disable with wrong password: %v", err)
	}
	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "correct horse battery", authcore.ClassifySecondFactor("000000")); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("disable with wrong code: %v", err)
	}

	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "correct horse battery", authcore.ClassifySecondFactor(e.totpCode(secret, 0))); err != nil {
		t.Fatalf("disable: %v", err)
	}

	// The gate is down and the backup codes are gone with it.
	res := e.mustLogin("ana@example.com", "correct horse battery")
	if res.MFARequired {
		t.Fatal("login still challenged after disable")
	}
	if _, err := e.engine.BackupCodeStatus(e.ctx(), "acct-1"); !errors.Is(err, authcore.ErrMFANotEnabled) {
		t.Fatalf("backup codes survived disable: %v", err)
	}

	// Old backup codes are dead even if MFA is re-enabled later.
	newSecret, _ := e.enableMFA("acct-1", "correct horse battery")
	if newSecret == secret {
		t.Fatal("re-enable reused the old secret")
	}
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", codes[2]); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("pre-disable backup code accepted: %v", err)
	}
	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "correct horse battery", authcore.ClassifySecondFactor("")); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("disable with empty factor: %v", err)
	}
}

func TestDisableMFAWithBackupCode(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	_, codes := e.enableMFA("acct-1", "correct horse battery")

	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "correct horse battery", authcore.ClassifySecondFactor(codes[0])); err != nil {
		t.Fatalf("disable with backup code: %v", err)
	}
	if err := e.engine.DisableMFA(e.ctx(), "acct-1", "correct horse battery", authcore.ClassifySecondFactor(codes[1])); !errors.Is(err, authcore.ErrMFANotEnabled) {
		t.Fatalf("double disable: %v", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	secret, oldCodes := e.enableMFA("acct-1", "correct horse battery")

	// A backup code is not good enough to mint more backup codes.
	if _, err := e.engine.RegenerateBackupCodes(e.ctx(), "acct-1", oldCodes[0]); !errors.Is(err, authcore.ErrBackupCodeRegenerationRequiresTOTP) {
		t.Fatalf("regenerate with backup code: %v", err)
	}

	fresh, err := e.engine.RegenerateBackupCodes(e.ctx(), "acct-1", e.totpCode(secret, 0))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(fresh) != 10 {
		t.Fatalf("fresh codes = %d, want 10", len(fresh))
	}

	// The old set is void, the new set works.
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", oldCodes[0]); !errors.Is(err, authcore.ErrInvalidSecondFactor) {
		t.Fatalf("old backup code accepted after regeneration: %v", err)
	}
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", fresh[0]); err != nil {
		t.Fatalf("fresh backup code: %v", err)
	}

	n, _ := e.engine.BackupCodeStatus(e.ctx(), "acct-1")
	if n != 9 {
		t.Fatalf("remaining = %d, want 9", n)
	}
}

func TestRegenerateRequiresEnabledMFA(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	if _, err := e.engine.RegenerateBackupCodes(e.ctx(), "acct-1", "123456"); !errors.Is(err, authcore.ErrMFANotEnabled) {
		t.Fatalf("regenerate without mfa: %v", err)
	}
}

func TestClassifySecondFactor(t *testing.T) {
	cases := []struct {
		in   string
		kind authcore.SecondFactorKind
	}{
		{"123456", authcore.FactorTOTP},
		{" 123456 ", authcore.FactorTOTP},
		{"12345", authcore.FactorBackupCode},
		{"1234567", authcore.FactorBackupCode},
		{"ABCD-EFGH", authcore.FactorBackupCode},
		{"abcdefgh", authcore.FactorBackupCode},
		{"12345a", authcore.FactorBackupCode},
		{"", authcore.FactorUnknown},
		{"   ", authcore.FactorUnknown},
	}
	for _, tc := range cases {
		if got := authcore.ClassifySecondFactor(tc.in); got.Kind != tc.kind {
			t.Errorf("Classify(%q).Kind = %v, want %v", tc.in, got.Kind, tc.kind)
		}
	}
}

func TestMFAChallengeWithinLockWindow(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	secret, _ := e.enableMFA("acct-1", "correct horse battery")

	// Lock the account with password failures, then make sure a
	// valid code cannot tunnel through the lock.
	for i := 0; i < 5; i++ {
		e.login("ana@example.com", "wrong password")
	}
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", e.totpCode(secret, 0)); !errors.Is(err, authcore.ErrAccountLocked) {
		t.Fatalf("locked mfa login: %v", err)
	}
	e.clock.Advance(31 * time.Minute)
	if _, err := e.loginWithFactor("ana@example.com", "correct horse battery", e.totpCode(secret, 0)); err != nil {
		t.Fatalf("after lock expiry: %v", err)
	}
}
