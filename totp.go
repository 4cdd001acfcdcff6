package authcore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSizePx = 256

// totpManager wraps TOTP provisioning and verification. Codes are six
// digits over SHA-1, the profile every mainstream authenticator app
// implements; period and skew come from MFAConfig.
type totpManager struct {
	issuer string
	period uint
	skew   uint
}

func newTOTPManager(cfg MFAConfig) *totpManager {
	return &totpManager{
		issuer: cfg.Issuer,
		period: cfg.Period,
		skew:   cfg.Skew,
	}
}

// Provision generates a fresh secret for the given account label and
// returns it alongside the otpauth:// URI and a PNG QR code encoded
// as a data URL, ready to render in a client without touching disk.
func (m *totpManager) Provision(accountEmail string) (secret, uri, qrDataURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountEmail,
		Period:      m.period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(qrSizePx, qrSizePx)
	if err != nil {
		return "", "", "", fmt.Errorf("render totp qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", "", "", fmt.Errorf("encode totp qr: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	return key.Secret(), key.URL(), dataURL, nil
}

// Verify checks a code against the secret at the given instant,
// accepting skew steps of drift on either side. A malformed secret is
// an error, not a mismatch.
func (m *totpManager) Verify(secret, code string, now time.Time) (bool, error) {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    m.period,
		Skew:      m.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("verify totp code: %w", err)
	}
	return ok, nil
}
