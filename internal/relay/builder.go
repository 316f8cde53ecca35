package relay

// Builder accumulates an ordered middleware list plus exactly one terminal
// handler and wires them into a chain. Registration order equals wrapping
// order: the first middleware registered becomes the outermost wrapper.
type Builder struct {
	mw       []Middleware
	terminal Handler
	err      error
}

func NewBuilder() *Builder { return &Builder{} }

// Use appends middleware to the chain.
func (b *Builder) Use(mw ...Middleware) *Builder {
	b.mw = append(b.mw, mw...)
	return b
}

// Terminal registers the innermost handler. Registering a second terminal
// is a configuration error; it is recorded here and surfaced by Build
// rather than overwriting the first.
func (b *Builder) Terminal(h Handler) *Builder {
	if b.terminal != nil {
		b.err = ErrTerminalRedefined
		return b
	}
	b.terminal = h
	return b
}

// Build wires and returns the chain, or the terminal itself when no
// middleware was registered. Build may be called repeatedly; every call
// yields an independently wired, equivalent Handler.
func (b *Builder) Build() (Handler, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.terminal == nil {
		return nil, ErrNoTerminal
	}
	return Chain(b.terminal, b.mw...), nil
}
