package authcore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/horizonsync/authcore"
)

func eventsByType(events []authcore.AuditEvent) map[string][]authcore.AuditEvent {
	out := make(map[string][]authcore.AuditEvent)
	for _, ev := range events {
		out[ev.Type] = append(out[ev.Type], ev)
	}
	return out
}

func TestAuditTrailForLoginLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	ctx := authcore.WithRequestID(e.ctx(), "req-42")

	e.engine.Login(ctx, authcore.LoginInput{Email: "ana@example.com", Password: "wrong password"})
	res, err := e.engine.Login(ctx, authcore.LoginInput{Email: "ana@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatal(err)
	}
	pair, err := e.engine.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	// Replay the rotated token, then log out of the survivor. The
	// survivor died with the family, so the logout is a quiet no-op.
	e.engine.Refresh(ctx, res.Tokens.RefreshToken)
	e.engine.Logout(ctx, "acct-1", pair.RefreshToken)

	byType := eventsByType(e.drainAudit())

	failures := byType[authcore.EventLoginFailure]
	if len(failures) != 1 || failures[0].Success || failures[0].Code != "invalid_credentials" {
		t.Fatalf("login failures: %+v", failures)
	}
	if failures[0].AccountID != "acct-1" || failures[0].RequestID != "req-42" || failures[0].IP != "203.0.113.9" {
		t.Fatalf("failure context: %+v", failures[0])
	}

	successes := byType[authcore.EventLoginSuccess]
	if len(successes) != 1 || !successes[0].Success || successes[0].SessionID != res.SessionID {
		t.Fatalf("login successes: %+v", successes)
	}

	rotations := byType[authcore.EventRefreshRotated]
	if len(rotations) != 1 || rotations[0].Metadata["rotated_from"] != res.SessionID {
		t.Fatalf("rotations: %+v", rotations)
	}

	reuses := byType[authcore.EventRefreshReuseDetected]
	if len(reuses) != 1 || reuses[0].Metadata["revoked"] != "1" {
		t.Fatalf("reuse events: %+v", reuses)
	}

	if len(byType[authcore.EventLogout]) != 0 {
		t.Fatalf("no-op logout still audited: %+v", byType[authcore.EventLogout])
	}

	// Every event has an id and a timestamp from the engine clock.
	for typ, evs := range byType {
		for _, ev := range evs {
			if ev.ID == "" || ev.Time.IsZero() {
				t.Fatalf("%s event missing id or time: %+v", typ, ev)
			}
		}
	}
}

func TestAuditLockoutEvent(t *testing.T) {
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	for i := 0; i < 5; i++ {
		e.login("ana@example.com", "wrong password")
	}

	byType := eventsByType(e.drainAudit())
	locks := byType[authcore.EventAccountLocked]
	if len(locks) != 1 {
		t.Fatalf("lock events = %d, want 1", len(locks))
	}
	if locks[0].Metadata["attempts"] != "5" {
		t.Fatalf("lock metadata: %+v", locks[0].Metadata)
	}
	if locks[0].Metadata["locked_until"] == "" {
		t.Fatal("lock event missing locked_until")
	}
	if n := len(byType[authcore.EventLoginFailure]); n != 5 {
		t.Fatalf("failure events = %d, want 5", n)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := authcore.NewJSONWriterSink(&buf)
	sink.Write(authcore.AuditEvent{
		ID:      "ev-1",
		Time:    time.Date(2026, 5, 17, 9, 0, 0, 0, time.UTC),
		Type:    authcore.EventLoginSuccess,
		Success: true,
	})
	sink.Write(authcore.AuditEvent{ID: "ev-2", Type: authcore.EventLogout, Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var ev authcore.AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line not json: %v", err)
	}
	if ev.ID != "ev-1" || ev.Type != authcore.EventLoginSuccess {
		t.Fatalf("round trip: %+v", ev)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := &authcore.SlogSink{Logger: logger}

	sink.Write(authcore.AuditEvent{ID: "ok", Type: authcore.EventLoginSuccess, Success: true})
	sink.Write(authcore.AuditEvent{ID: "bad", Type: authcore.EventLoginFailure, Code: "invalid_credentials"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var first, second map[string]any
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)
	if first["level"] != "INFO" || second["level"] != "WARN" {
		t.Fatalf("levels: %v / %v", first["level"], second["level"])
	}
	if second["code"] != "invalid_credentials" {
		t.Fatalf("missing code attr: %v", second)
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := authcore.NewChannelSink(1)
	sink.Write(authcore.AuditEvent{ID: "first"})
	sink.Write(authcore.AuditEvent{ID: "second"})

	select {
	case ev := <-sink.Events():
		if ev.ID != "first" {
			t.Fatalf("got %q", ev.ID)
		}
	default:
		t.Fatal("channel empty")
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected second event %q", ev.ID)
	default:
	}
}

func TestAuditDisabledByDefaultSink(t *testing.T) {
	// No sink configured: events vanish without error and the engine
	// still reports zero drops after a normal close.
	e := newEnv(t, nil)
	e.seedAccount("acct-1", "ana@example.com", "correct horse battery")

	engine, err := authcore.New().
		WithConfig(e.cfg).
		WithStore(e.store).
		WithClock(e.clock.Now).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Login(context.Background(), authcore.LoginInput{Email: "ana@example.com", Password: "correct horse battery"}); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}
	if n := engine.AuditDropped(); n != 0 {
		t.Fatalf("dropped = %d", n)
	}
}
