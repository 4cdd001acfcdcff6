package authcore

import (
	"context"
	"fmt"
	"time"
)

// BeginMFAEnrollment provisions a TOTP secret for the account and
// moves it to the pending state. The password is re-checked even
// though the caller already holds a valid access token; enabling MFA
// from a hijacked session must not be free. The returned enrollment
// carries the only cleartext copy of the secret and backup codes.
//
// Calling again while still pending discards the previous secret and
// codes and provisions fresh ones.
func (e *Engine) BeginMFAEnrollment(ctx context.Context, accountID, pw string) (*MFAEnrollment, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.MFA.State == MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if err := e.recheckPassword(account, pw); err != nil {
		e.emitAudit(ctx, EventMFAEnrollmentStarted, false, accountID, "", err, nil)
		return nil, err
	}

	secret, uri, qr, err := e.totp.Provision(account.Email)
	if err != nil {
		return nil, err
	}
	codes, hashes, err := e.generateBackupCodes(accountID)
	if err != nil {
		return nil, err
	}

	if err := e.store.SetMFA(ctx, accountID, MFA{State: MFAPending, Secret: secret}); err != nil {
		return nil, fmt.Errorf("store mfa state: %w", err)
	}
	if err := e.store.ReplaceBackupCodes(ctx, accountID, hashes); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	e.emitAudit(ctx, EventMFAEnrollmentStarted, true, accountID, "", nil, nil)
	return &MFAEnrollment{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCode:          qr,
		BackupCodes:     codes,
	}, nil
}

// ConfirmMFAEnrollment proves the authenticator was set up by
// checking one live code against the pending secret, then enables
// MFA. Only a TOTP code counts here; backup codes cannot confirm an
// enrollment they were minted alongside.
func (e *Engine) ConfirmMFAEnrollment(ctx context.Context, accountID, code string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	switch account.MFA.State {
	case MFAPending:
	case MFAEnabled:
		return ErrMFAAlreadyEnabled
	default:
		return ErrMFANotPending
	}

	ok, err := e.totp.Verify(account.MFA.Secret, code, e.now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFAEnabled, false, accountID, "", ErrInvalidSecondFactor, nil)
		return ErrInvalidSecondFactor
	}

	if err := e.store.SetMFA(ctx, accountID, MFA{State: MFAEnabled, Secret: account.MFA.Secret}); err != nil {
		return fmt.Errorf("store mfa state: %w", err)
	}

	e.emitAudit(ctx, EventMFAEnabled, true, accountID, "", nil, nil)
	return nil
}

// DisableMFA turns the authenticator off. It demands the password and
// a currently valid second factor, TOTP or backup code, so neither a
// stolen session nor a stolen password suffices on its own. The
// secret and every backup code are cleared; re-enabling later starts
// a fresh enrollment from scratch.
func (e *Engine) DisableMFA(ctx context.Context, accountID, pw string, factor SecondFactor) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if account.MFA.State != MFAEnabled {
		return ErrMFANotEnabled
	}
	if err := e.recheckPassword(account, pw); err != nil {
		e.emitAudit(ctx, EventMFADisabled, false, accountID, "", err, nil)
		return err
	}
	if err := e.verifySecondFactor(ctx, account, factor, e.now()); err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, EventMFADisabled, false, accountID, "", err, nil)
		return err
	}

	if err := e.store.SetMFA(ctx, accountID, MFA{State: MFADisabled}); err != nil {
		return fmt.Errorf("store mfa state: %w", err)
	}
	if err := e.store.ReplaceBackupCodes(ctx, accountID, nil); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}

	e.emitAudit(ctx, EventMFADisabled, true, accountID, "", nil, nil)
	return nil
}

// verifySecondFactor dispatches on the factor kind. TOTP codes check
// against the account secret with the configured drift window; backup
// codes are consumed on success and never work twice.
func (e *Engine) verifySecondFactor(ctx context.Context, account *Account, factor SecondFactor, now time.Time) error {
	switch factor.Kind {
	case FactorTOTP:
		ok, err := e.totp.Verify(account.MFA.Secret, factor.Code, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidSecondFactor
		}
		return nil
	case FactorBackupCode:
		return e.consumeBackupCode(ctx, account.ID, factor.Code, now)
	default:
		return ErrInvalidSecondFactor
	}
}

// recheckPassword verifies a password re-submission on an already
// authenticated path.
func (e *Engine) recheckPassword(account *Account, pw string) error {
	if !passwordLengthOK(pw) {
		return ErrInvalidCredentials
	}
	ok, err := e.hasher.Verify(pw, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
