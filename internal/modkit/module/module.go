// Package module defines the minimal contract for a modkit module
package module

// Module is what a composed service exposes to main
// keep this sibling to avoid import knots when a module also exports its own ports type
type Module interface {
	Name() string
	Ports() any
}
