// Package device derives a coarse device description from a User-Agent
// string. The classification is a handful of substring checks, enough to
// label a session list entry; it makes no attempt at full UA parsing.
package device

import "strings"

const maxNameLen = 100

// Info describes the client that opened a session.
type Info struct {
	Name    string
	Type    string
	Browser string
}

// Device type values produced by Parse.
const (
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeDesktop = "desktop"
)

var browsers = []string{"chrome", "firefox", "safari", "edge", "opera"}

// Parse classifies userAgent. An empty input yields a zero Info.
func Parse(userAgent string) Info {
	if userAgent == "" {
		return Info{}
	}

	lower := strings.ToLower(userAgent)

	info := Info{Type: TypeDesktop}
	switch {
	case strings.Contains(lower, "mobile"),
		strings.Contains(lower, "android"),
		strings.Contains(lower, "iphone"):
		info.Type = TypeMobile
	case strings.Contains(lower, "tablet"),
		strings.Contains(lower, "ipad"):
		info.Type = TypeTablet
	}

	for _, b := range browsers {
		if strings.Contains(lower, b) {
			info.Browser = strings.ToUpper(b[:1]) + b[1:]
			break
		}
	}

	info.Name = userAgent
	if len(info.Name) > maxNameLen {
		info.Name = info.Name[:maxNameLen]
	}
	return info
}
