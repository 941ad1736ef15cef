// Package strings provides helpers for optional string values
package strings

import std "strings"

// Ptr returns a pointer to the trimmed s, or nil if s is blank
func Ptr(s string) *string {
	s = std.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *p, or def when p is nil
func Deref(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
