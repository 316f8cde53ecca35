// Package pipeline assembles middleware chains from YAML manifests.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"relay/internal/relay"
)

// MiddlewareFactory builds a middleware from its manifest config node.
// The node may be nil when the step has no config block.
type MiddlewareFactory func(cfg *yaml.Node) (relay.Middleware, error)

// TerminalFactory builds a terminal handler from its manifest config node.
type TerminalFactory func(cfg *yaml.Node) (relay.Handler, error)

// Registry maps manifest step names to factories. A Registry is built
// once at startup and read-only afterwards.
type Registry struct {
	middleware map[string]MiddlewareFactory
	terminals  map[string]TerminalFactory
}

func NewRegistry() *Registry {
	return &Registry{
		middleware: make(map[string]MiddlewareFactory),
		terminals:  make(map[string]TerminalFactory),
	}
}

// RegisterMiddleware adds a middleware factory under name.
func (r *Registry) RegisterMiddleware(name string, f MiddlewareFactory) error {
	if _, exists := r.middleware[name]; exists {
		return errors.Newf("middleware %q already registered", name)
	}
	r.middleware[name] = f
	return nil
}

// RegisterTerminal adds a terminal factory under name.
func (r *Registry) RegisterTerminal(name string, f TerminalFactory) error {
	if _, exists := r.terminals[name]; exists {
		return errors.Newf("terminal %q already registered", name)
	}
	r.terminals[name] = f
	return nil
}

func (r *Registry) middlewareFactory(name string) (MiddlewareFactory, error) {
	f, ok := r.middleware[name]
	if !ok {
		return nil, errors.Newf("unknown middleware %q", name)
	}
	return f, nil
}

func (r *Registry) terminalFactory(name string) (TerminalFactory, error) {
	f, ok := r.terminals[name]
	if !ok {
		return nil, errors.Newf("unknown terminal %q", name)
	}
	return f, nil
}

// DecodeConfig unmarshals a step's config node into out. A nil or empty
// node leaves out at its zero value so factories can apply defaults.
func DecodeConfig(node *yaml.Node, out any) error {
	if node == nil || node.IsZero() {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return errors.Wrap(err, "decoding step config")
	}
	return nil
}
