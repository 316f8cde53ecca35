package pipeline

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"relay/internal/relay"
)

// Step names one entry of a manifest plus its factory config.
type Step struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// Manifest is the on-disk description of a pipeline: an ordered
// middleware list and exactly one terminal. The first middleware listed
// is the outermost layer at runtime.
type Manifest struct {
	Middleware []Step `yaml:"middleware"`
	Terminal   Step   `yaml:"terminal"`
}

// Load reads a manifest file and assembles it against reg.
func Load(path string, reg *Registry) (relay.Handler, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	h, err := Parse(raw, reg)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	return h, nil
}

// Parse decodes a YAML manifest and assembles it against reg.
func Parse(raw []byte, reg *Registry) (relay.Handler, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	return Assemble(m, reg)
}

// Assemble resolves every step through the registry and builds the
// chain. A manifest without a terminal name fails with ErrNoTerminal.
func Assemble(m Manifest, reg *Registry) (relay.Handler, error) {
	b := relay.NewBuilder()

	for _, step := range m.Middleware {
		f, err := reg.middlewareFactory(step.Name)
		if err != nil {
			return nil, err
		}
		mw, err := f(configNode(step))
		if err != nil {
			return nil, errors.Wrapf(err, "building middleware %q", step.Name)
		}
		b.Use(mw)
	}

	if m.Terminal.Name == "" {
		return nil, relay.ErrNoTerminal
	}
	f, err := reg.terminalFactory(m.Terminal.Name)
	if err != nil {
		return nil, err
	}
	term, err := f(configNode(m.Terminal))
	if err != nil {
		return nil, errors.Wrapf(err, "building terminal %q", m.Terminal.Name)
	}
	b.Terminal(term)

	return b.Build()
}

func configNode(s Step) *yaml.Node {
	if s.Config.IsZero() {
		return nil
	}
	return &s.Config
}
