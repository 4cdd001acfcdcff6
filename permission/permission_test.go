package permission

import (
	"reflect"
	"testing"
)

func TestSetHasExactMatch(t *testing.T) {
	s := NewSet([]string{"invoice:read", "invoice:create", "report:view"})

	if !s.Has("invoice:read") {
		t.Fatal("expected exact grant to match")
	}
	if s.Has("invoice:delete") {
		t.Fatal("unexpected match for ungranted action")
	}
	if s.Has("customer:read") {
		t.Fatal("unexpected match for ungranted resource")
	}
}

func TestSetHasResourceWildcard(t *testing.T) {
	s := NewSet([]string{"invoice:*", "report:view"})

	cases := []struct {
		code string
		want bool
	}{
		{"invoice:read", true},
		{"invoice:delete", true},
		{"invoice:*", true},
		{"report:view", true},
		{"report:export", false},
		{"customer:read", false},
	}
	for _, tc := range cases {
		if got := s.Has(tc.code); got != tc.want {
			t.Fatalf("Has(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestSetHasSuperWildcard(t *testing.T) {
	s := NewSet([]string{"*:*"})

	for _, code := range []string{"invoice:read", "anything:at_all", "admin:purge"} {
		if !s.Has(code) {
			t.Fatalf("super wildcard did not cover %q", code)
		}
	}
}

func TestSetHasNoPartialWildcards(t *testing.T) {
	// "*" alone and "*:read" are not recognized grant shapes; they only
	// match their own literal spelling.
	s := NewSet([]string{"*", "*:read"})

	if s.Has("invoice:read") {
		t.Fatal("*:read must not act as an action wildcard")
	}
	if s.Has("invoice:delete") {
		t.Fatal("bare * must not act as a super wildcard")
	}
	if !s.Has("*:read") {
		t.Fatal("literal grant should still match itself")
	}
}

func TestSetHasEmptyAndNil(t *testing.T) {
	var nilSet Set
	if nilSet.Has("invoice:read") {
		t.Fatal("nil set must grant nothing")
	}
	if NewSet(nil) != nil {
		t.Fatal("NewSet(nil) should collapse to nil")
	}
	if NewSet([]string{""}) != nil {
		t.Fatal("empty codes should be dropped")
	}
	if NewSet([]string{"a:b"}).Has("") {
		t.Fatal("empty required code must never match")
	}
}

func TestSetHasCodeWithoutSeparator(t *testing.T) {
	s := NewSet([]string{"standalone", "*:*"})

	if !s.Has("standalone") {
		t.Fatal("separatorless code should match exactly")
	}
	if !NewSet([]string{"*:*"}).Has("standalone") {
		t.Fatal("super wildcard should cover separatorless codes")
	}
	if NewSet([]string{"standalone:*"}).Has("standalone") {
		t.Fatal("resource wildcard requires a resource:action shape")
	}
}

func TestSetHasAllAndAny(t *testing.T) {
	s := NewSet([]string{"invoice:*", "report:view"})

	if !s.HasAll("invoice:read", "report:view") {
		t.Fatal("expected HasAll to pass")
	}
	if s.HasAll("invoice:read", "customer:read") {
		t.Fatal("HasAll must fail when one code is uncovered")
	}
	if !s.HasAny("customer:read", "invoice:delete") {
		t.Fatal("expected HasAny to pass via invoice:*")
	}
	if s.HasAny("customer:read", "customer:write") {
		t.Fatal("HasAny must fail when nothing is covered")
	}
	if !s.HasAll() {
		t.Fatal("HasAll with no codes is vacuously true")
	}
	if s.HasAny() {
		t.Fatal("HasAny with no codes is false")
	}
}

func TestSetList(t *testing.T) {
	s := NewSet([]string{"b:y", "a:x", "b:y"})

	got := s.List()
	want := []string{"a:x", "b:y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	if (Set)(nil).List() != nil {
		t.Fatal("nil set should list nil")
	}
}

func TestAllowedMatchesSetSemantics(t *testing.T) {
	granted := []string{"invoice:*", "report:view"}

	cases := []struct {
		code string
		want bool
	}{
		{"invoice:read", true},
		{"report:view", true},
		{"report:export", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Allowed(granted, tc.code); got != tc.want {
			t.Fatalf("Allowed(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
	if Allowed(nil, "invoice:read") {
		t.Fatal("empty grant slice must not match")
	}
	if !Allowed([]string{"*:*"}, "invoice:read") {
		t.Fatal("super wildcard should match through Allowed")
	}
}
