package device

import (
	"strings"
	"testing"
)

func TestParseClassifiesDeviceType(t *testing.T) {
	cases := []struct {
		ua       string
		wantType string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1", TypeMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Chrome/120.0", TypeMobile},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Safari/604.1", TypeTablet},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", TypeDesktop},
		{"curl/8.4.0", TypeDesktop},
	}
	for _, tc := range cases {
		if got := Parse(tc.ua); got.Type != tc.wantType {
			t.Fatalf("Parse(%q).Type = %q, want %q", tc.ua, got.Type, tc.wantType)
		}
	}
}

func TestParseDetectsBrowser(t *testing.T) {
	cases := []struct {
		ua          string
		wantBrowser string
	}{
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36", "Chrome"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", "Firefox"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) Version/17.0 Safari/605.1.15", "Safari"},
		{"curl/8.4.0", ""},
	}
	for _, tc := range cases {
		if got := Parse(tc.ua); got.Browser != tc.wantBrowser {
			t.Fatalf("Parse(%q).Browser = %q, want %q", tc.ua, got.Browser, tc.wantBrowser)
		}
	}
}

func TestParseEmptyAndTruncation(t *testing.T) {
	if got := Parse(""); got != (Info{}) {
		t.Fatalf("Parse(\"\") = %+v, want zero", got)
	}

	long := strings.Repeat("x", 300)
	got := Parse(long)
	if len(got.Name) != 100 {
		t.Fatalf("name length = %d, want 100", len(got.Name))
	}
}
