package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPassBytes = 8
	maxPassBytes = 72 // bcrypt truncation boundary; longer inputs are rejected
)

// Config holds bcrypt parameters. A zero Cost selects bcrypt.DefaultCost.
type Config struct {
	Cost int
}

// Bcrypt hashes and verifies passwords. Safe for concurrent use.
type Bcrypt struct {
	cost  int
	dummy []byte
}

// NewBcrypt validates cfg and precomputes the dummy hash used by
// [Bcrypt.CompareDummy].
func NewBcrypt(cfg Config) (*Bcrypt, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("authcore.dummy.compare.target"), cost)
	if err != nil {
		return nil, err
	}

	return &Bcrypt{cost: cost, dummy: dummy}, nil
}

// Hash returns the bcrypt hash of password at the configured cost.
func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", errors.New("password must be at least 8 bytes")
	}
	if len(password) > maxPassBytes {
		return "", errors.New("password must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches encodedHash. A mismatch is
// (false, nil); errors are reserved for malformed hashes.
func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// CompareDummy burns one bcrypt comparison against a fixed hash that no
// password matches. Callers run it when the account lookup misses so that
// unknown and known identifiers cost the same wall time.
func (b *Bcrypt) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(password))
}

// NeedsUpgrade reports whether encodedHash was produced at a lower cost than
// the hasher is configured for.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}
