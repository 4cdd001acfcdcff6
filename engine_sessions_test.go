package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/horizonsync/authcore"
)

func loginFromDevice(t *testing.T, e *env, email, pw, ip, ua string) *authcore.LoginResult {
	t.Helper()
	ctx := authcore.WithClientIP(context.Background(), ip)
	ctx = authcore.WithUserAgent(ctx, ua)
	res, err := e.engine.Login(ctx, authcore.LoginInput{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("login from %s: %v", ip, err)
	}
	return res
}

func TestListSessionsDeviceMetadata(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	phone := loginFromDevice(t, e, "ana@example.com", "correct horse battery",
		"198.51.100.7",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Version/17.5 Mobile/15E148 Safari/604.1")
	e.clock.Advance(time.Minute)
	laptop := loginFromDevice(t, e, "ana@example.com", "correct horse battery",
		"203.0.113.9",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/127.0.0.0 Safari/537.36")

	sessions, err := e.engine.ListSessions(context.Background(), "acct-1", laptop.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("session count = %d", len(sessions))
	}

	// Newest first, and only the caller's session is current.
	if sessions[0].ID != laptop.SessionID || !sessions[0].Current {
		t.Fatalf("first entry: %+v", sessions[0])
	}
	if sessions[1].ID != phone.SessionID || sessions[1].Current {
		t.Fatalf("second entry: %+v", sessions[1])
	}

	if sessions[0].DeviceType != "desktop" || sessions[0].Browser != "Chrome" || sessions[0].IP != "203.0.113.9" {
		t.Fatalf("laptop metadata: %+v", sessions[0])
	}
	if sessions[1].DeviceType != "mobile" || sessions[1].Browser != "Safari" {
		t.Fatalf("phone metadata: %+v", sessions[1])
	}
	if !sessions[1].LastUsedAt.Equal(sessions[1].CreatedAt) {
		t.Fatalf("unused session last_used should equal created: %+v", sessions[1])
	}
}

func TestSessionCapEvictsOldest(t *testing.T) {
	e := newEnv(t, func(c *authcore.Config) {
		c.Sessions.MaxPerAccount = 3
	})
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	var results []*authcore.LoginResult
	for i := 0; i < 4; i++ {
		results = append(results, e.mustLogin("ana@example.com", "correct horse battery"))
		e.clock.Advance(time.Minute)
	}

	sessions, err := e.engine.ListSessions(context.Background(), "acct-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Fatalf("sessions = %d, want 3", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == results[0].SessionID {
			t.Fatal("oldest session survived the cap")
		}
	}

	// The evicted session's refresh token is dead.
	if _, err := e.engine.Refresh(e.ctx(), results[0].Tokens.RefreshToken); !errors.Is(err, authcore.ErrInvalidRefreshToken) {
		t.Fatalf("evicted session refreshed: %v", err)
	}

	snap := e.engine.Metrics()
	if snap.SessionsEvicted != 1 {
		t.Fatalf("evictions = %d, want 1", snap.SessionsEvicted)
	}
}

func TestSessionCapWithFrozenClock(t *testing.T) {
	// Identical creation timestamps must still evict deterministically,
	// oldest issue order first.
	e := newEnv(t, func(c *authcore.Config) {
		c.Sessions.MaxPerAccount = 2
	})
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	first := e.mustLogin("ana@example.com", "correct horse battery")
	second := e.mustLogin("ana@example.com", "correct horse battery")
	third := e.mustLogin("ana@example.com", "correct horse battery")

	sessions, err := e.engine.ListSessions(context.Background(), "acct-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	got := map[string]bool{sessions[0].ID: true, sessions[1].ID: true}
	if got[first.SessionID] || !got[second.SessionID] || !got[third.SessionID] {
		t.Fatalf("wrong survivor set: %+v", sessions)
	}
}

func TestRevokeOwnSession(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	keep := e.mustLogin("ana@example.com", "correct horse battery")
	e.clock.Advance(time.Minute)
	drop := e.mustLogin("ana@example.com", "correct horse battery")

	if err := e.engine.RevokeSession(e.ctx(), "acct-1", drop.SessionID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	sessions, _ := e.engine.ListSessions(context.Background(), "acct-1", keep.SessionID)
	if len(sessions) != 1 || sessions[0].ID != keep.SessionID {
		t.Fatalf("sessions after revoke: %+v", sessions)
	}

	// Revoking again reads as nonexistent.
	if err := e.engine.RevokeSession(e.ctx(), "acct-1", drop.SessionID); !errors.Is(err, authcore.ErrSessionNotFound) {
		t.Fatalf("double revoke: %v", err)
	}
	if _, err := e.engine.Refresh(e.ctx(), drop.Tokens.RefreshToken); !errors.Is(err, authcore.ErrInvalidRefreshToken) {
		t.Fatalf("revoked session refreshed: %v", err)
	}
}

func TestRevokeForeignSessionLooksNonexistent(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")
	e.seedAccount("acct-2", "bo@example.com", "another fine passphrase")

	target := e.mustLogin("ana@example.com", "correct horse battery")

	err := e.engine.RevokeSession(e.ctx(), "acct-2", target.SessionID)
	if !errors.Is(err, authcore.ErrSessionNotFound) {
		t.Fatalf("foreign revoke = %v, want ErrSessionNotFound", err)
	}
	// Same answer as a fabricated id; ownership is not probeable.
	err2 := e.engine.RevokeSession(e.ctx(), "acct-2", "01JFAKEFAKEFAKEFAKEFAKEFAK")
	if !errors.Is(err2, authcore.ErrSessionNotFound) {
		t.Fatalf("unknown revoke = %v", err2)
	}
	if err.Error() != err2.Error() {
		t.Fatalf("foreign and unknown differ: %q vs %q", err, err2)
	}

	// Ana's session is untouched.
	if _, err := e.engine.Refresh(e.ctx(), target.Tokens.RefreshToken); err != nil {
		t.Fatalf("victim session was revoked: %v", err)
	}
}

func TestRotationMovesCurrentSession(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	res := e.mustLogin("ana@example.com", "correct horse battery")
	e.clock.Advance(time.Hour)

	pair, err := e.engine.Refresh(e.ctx(), res.Tokens.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	id, err := e.engine.VerifyAccess(e.ctx(), pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := e.engine.ListSessions(context.Background(), "acct-1", id.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].ID != id.SessionID || !sessions[0].Current {
		t.Fatalf("successor not current: %+v", sessions[0])
	}
	if !sessions[0].CreatedAt.Equal(testStart.Add(time.Hour)) {
		t.Fatalf("successor created at %v", sessions[0].CreatedAt)
	}
}
