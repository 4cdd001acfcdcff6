package permission

import (
	"sort"
	"strings"
)

// Separator splits a code into its resource and action parts.
const Separator = ":"

// Wildcard is the action (or resource) component that matches anything.
const Wildcard = "*"

// Super is the grant that covers every permission code.
const Super = Wildcard + Separator + Wildcard

// Set is an immutable collection of granted permission codes. The zero value
// and nil both behave as an empty set that grants nothing.
type Set map[string]struct{}

// NewSet builds a Set from a slice of permission codes. Duplicates collapse;
// empty strings are dropped. The input slice is not retained.
func NewSet(codes []string) Set {
	if len(codes) == 0 {
		return nil
	}
	s := make(Set, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
	if len(s) == 0 {
		return nil
	}
	return s
}

// Has reports whether the set covers the required code. Matching is
// three-step: exact code, then "resource:*", then "*:*". A code without a
// separator can only match exactly or via "*:*".
func (s Set) Has(code string) bool {
	if len(s) == 0 || code == "" {
		return false
	}
	if _, ok := s[code]; ok {
		return true
	}
	if resource, _, found := strings.Cut(code, Separator); found {
		if _, ok := s[resource+Separator+Wildcard]; ok {
			return true
		}
	}
	_, ok := s[Super]
	return ok
}

// HasAll reports whether every code is covered. Vacuously true for no codes.
func (s Set) HasAll(codes ...string) bool {
	for _, c := range codes {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one code is covered.
func (s Set) HasAny(codes ...string) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// List returns the granted codes in sorted order. The result is a copy.
func (s Set) List() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Allowed is a convenience for one-shot checks against a raw grant slice,
// typically the permissions claim of a decoded access token.
func Allowed(granted []string, code string) bool {
	if len(granted) == 0 || code == "" {
		return false
	}
	resource, _, found := strings.Cut(code, Separator)
	for _, g := range granted {
		if g == code || g == Super {
			return true
		}
		if found && g == resource+Separator+Wildcard {
			return true
		}
	}
	return false
}
