package modkit

// Option mutates build configuration for a module
type Option func(*buildCfg)

type buildCfg struct {
	name  string
	ports []any
}

// WithName overrides the module name used in logs and the registry
func WithName(name string) Option {
	return func(c *buildCfg) { c.name = name }
}

// WithPorts injects a port implementation the module would otherwise build itself.
// Modules pick the ports they understand by type; several may be passed
func WithPorts[T any](p T) Option {
	return func(c *buildCfg) { c.ports = append(c.ports, p) }
}

// Built is the resolved option set
type Built struct {
	Name  string
	ports []any
}

// Build applies options and returns the resolved set
func Build(opts ...Option) Built {
	var c buildCfg
	for _, o := range opts {
		o(&c)
	}
	return Built{Name: c.name, ports: append([]any(nil), c.ports...)}
}

// Port returns the last injected port assignable to T
func Port[T any](b Built) (T, bool) {
	for i := len(b.ports) - 1; i >= 0; i-- {
		if v, ok := b.ports[i].(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
