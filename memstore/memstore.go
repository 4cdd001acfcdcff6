// Package memstore implements authcore.Store in memory. It backs the
// test suites and the examples, and works for single-process
// deployments that can afford to lose sessions on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/horizonsync/authcore"
)

type backupCode struct {
	hash   string
	usedAt *time.Time
}

// Store holds everything behind one mutex. Reads hand out copies, so
// callers can never mutate shared state through a returned pointer.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*authcore.Account
	byEmail  map[string]string
	tokens   map[string]*authcore.RefreshToken
	byHash   map[string]string
	codes    map[string][]backupCode
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*authcore.Account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]*authcore.RefreshToken),
		byHash:   make(map[string]string),
		codes:    make(map[string][]backupCode),
	}
}

// AddAccount seeds an account, indexing its email case-insensitively.
func (s *Store) AddAccount(a *authcore.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.ID] = &cp
	s.byEmail[authcore.NormalizeEmail(a.Email)] = a.ID
}

func copyAccount(a *authcore.Account) *authcore.Account {
	cp := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		cp.LockedUntil = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func copyToken(t *authcore.RefreshToken) *authcore.RefreshToken {
	cp := *t
	if t.LastUsedAt != nil {
		v := *t.LastUsedAt
		cp.LastUsedAt = &v
	}
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		cp.RevokedAt = &v
	}
	return &cp
}

func (s *Store) AccountByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

func (s *Store) AccountByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *Store) RecordLoginFailure(_ context.Context, accountID string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, authcore.ErrAccountNotFound
	}
	a.FailedLogins++
	return a.FailedLogins, nil
}

func (s *Store) LockAccount(_ context.Context, accountID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	a.LockedUntil = &until
	return nil
}

func (s *Store) ResetLoginState(_ context.Context, accountID string, now time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	a.FailedLogins = 0
	a.LockedUntil = nil
	a.LastLoginAt = &now
	a.LastLoginIP = ip
	return nil
}

func (s *Store) SetMFA(_ context.Context, accountID string, mfa authcore.MFA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	a.MFA = mfa
	return nil
}

func (s *Store) ReplaceBackupCodes(_ context.Context, accountID string, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return authcore.ErrAccountNotFound
	}
	codes := make([]backupCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, backupCode{hash: h})
	}
	s.codes[accountID] = codes
	return nil
}

func (s *Store) ConsumeBackupCode(_ context.Context, accountID, hash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.codes[accountID]
	for i := range codes {
		if codes[i].hash == hash && codes[i].usedAt == nil {
			t := now
			codes[i].usedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) BackupCodeCount(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes[accountID] {
		if c.usedAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) StoreRefreshToken(_ context.Context, rec *authcore.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyToken(rec)
	s.tokens[cp.ID] = cp
	s.byHash[cp.TokenHash] = cp.ID
	return nil
}

func (s *Store) RefreshTokenByHash(_ context.Context, hash string) (*authcore.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, authcore.ErrSessionNotFound
	}
	return copyToken(s.tokens[id]), nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID, reason string, now time.Time, next *authcore.RefreshToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldID]
	if !ok || old.RevokedAt != nil {
		return false, nil
	}
	t := now
	old.RevokedAt = &t
	old.RevokedReason = reason
	old.LastUsedAt = &t
	cp := copyToken(next)
	s.tokens[cp.ID] = cp
	s.byHash[cp.TokenHash] = cp.ID
	return true, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, id, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[id]
	if !ok {
		return authcore.ErrSessionNotFound
	}
	if rec.RevokedAt == nil {
		t := now
		rec.RevokedAt = &t
		rec.RevokedReason = reason
	}
	return nil
}

func (s *Store) RevokeFamily(_ context.Context, familyID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.tokens {
		if rec.FamilyID == familyID && rec.RevokedAt == nil {
			t := now
			rec.RevokedAt = &t
			rec.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (s *Store) RevokeAllForAccount(_ context.Context, accountID, exceptID, reason string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.tokens {
		if rec.AccountID != accountID || rec.ID == exceptID {
			continue
		}
		if !rec.Active(now) {
			continue
		}
		t := now
		rec.RevokedAt = &t
		rec.RevokedReason = reason
		n++
	}
	return n, nil
}

func (s *Store) ActiveSessions(_ context.Context, accountID string, now time.Time) ([]*authcore.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authcore.RefreshToken
	for _, rec := range s.tokens {
		if rec.AccountID == accountID && rec.Active(now) {
			out = append(out, copyToken(rec))
		}
	}
	// Newest first. Ids are monotonic ULIDs, so they break ties when
	// a frozen clock hands out identical creation times.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) SessionByID(_ context.Context, accountID, id string) (*authcore.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[id]
	if !ok || rec.AccountID != accountID {
		return nil, authcore.ErrSessionNotFound
	}
	return copyToken(rec), nil
}

// Roles is a map-backed authcore.RoleResolver. Reassigning between
// rotations is how tests exercise permission re-resolution.
type Roles struct {
	mu  sync.Mutex
	set map[string]authcore.RoleAssignment
}

func NewRoles() *Roles {
	return &Roles{set: make(map[string]authcore.RoleAssignment)}
}

func (r *Roles) Assign(accountID string, a authcore.RoleAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.Permissions = append([]string(nil), a.Permissions...)
	r.set[accountID] = a
}

func (r *Roles) Resolve(_ context.Context, accountID string) (*authcore.RoleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.set[accountID]
	if !ok {
		return &authcore.RoleAssignment{}, nil
	}
	cp := a
	cp.Permissions = append([]string(nil), a.Permissions...)
	return &cp, nil
}
