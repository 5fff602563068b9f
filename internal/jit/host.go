// Package jit adapts wazero to a JIT host with dylibs, lazily materialized
// modules and definition generators for undefined symbols.
package jit

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tetratelabs/jitbridge/internal/symbol"
)

// DefaultNamespace is the import module name compilers use for undefined
// symbols, e.g. clang and rustc targeting wasm32.
const DefaultNamespace = "env"

// State is the lifecycle of a Host.
type State uint8

const (
	StateUninitialized State = iota
	StateCreated
	StateModuleAdded
	StateGeneratorAttached
	StateReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateModuleAdded:
		return "module added"
	case StateGeneratorAttached:
		return "generator attached"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ExecutorSymbol is the result of a lookup.
type ExecutorSymbol struct {
	Name  string
	Flags SymbolFlags
	Func  api.Function
}

// Option configures a Host.
type Option func(*Host)

// WithNamespace sets the import module name the main dylib satisfies.
// Defaults to DefaultNamespace.
func WithNamespace(name string) Option {
	return func(h *Host) {
		h.namespace = name
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithModuleConfig sets the configuration modules are instantiated with. The
// name is always overwritten with the module's own.
func WithModuleConfig(config wazero.ModuleConfig) Option {
	return func(h *Host) {
		h.moduleConfig = config
	}
}

// Host executes modules added to its main dylib.
type Host struct {
	tsc          *Context
	pool         *symbol.Pool
	main         *Dylib
	namespace    string
	logger       *zap.Logger
	moduleConfig wazero.ModuleConfig

	moduleAdded, generatorAttached, closed bool
}

// NewHost returns a Host borrowing the runtime of tsc, which must stay open
// for the life of the Host.
func NewHost(tsc *Context, opts ...Option) (*Host, error) {
	if tsc == nil || tsc.closed {
		return nil, fmt.Errorf("new host: context %w", ErrClosed)
	}
	h := &Host{
		tsc:       tsc,
		pool:      symbol.NewPool(),
		namespace: DefaultNamespace,
		logger:    zap.NewNop(),
		// Modules are libraries here: run a reactor initializer, never _start.
		moduleConfig: wazero.NewModuleConfig().WithStartFunctions("_initialize"),
	}
	for _, o := range opts {
		o(h)
	}
	if h.namespace == "" {
		return nil, fmt.Errorf("new host: %w: empty namespace", ErrEngineInvariant)
	}
	h.main = newDylib(h, h.namespace)
	return h, nil
}

// MainDylib returns the dylib modules are added to.
func (h *Host) MainDylib() *Dylib {
	return h.main
}

// SymbolPool returns the pool all names of this host are interned in.
func (h *Host) SymbolPool() *symbol.Pool {
	return h.pool
}

// State returns the lifecycle state. Attaching a generator and adding a
// module can happen in either order; both lead to StateReady.
func (h *Host) State() State {
	switch {
	case h.tsc == nil:
		return StateUninitialized
	case h.moduleAdded && h.generatorAttached:
		return StateReady
	case h.moduleAdded:
		return StateModuleAdded
	case h.generatorAttached:
		return StateGeneratorAttached
	}
	return StateCreated
}

// AddModule transfers m to the host, defining its function exports in the
// main dylib. Code is only instantiated when a lookup needs it.
func (h *Host) AddModule(m *Module) (*Dylib, error) {
	switch {
	case h.closed:
		return nil, fmt.Errorf("add module: host %w", ErrClosed)
	case m == nil:
		return nil, fmt.Errorf("add module: %w: nil module", ErrEngineInvariant)
	case m.moved:
		return nil, fmt.Errorf("add module %s: %w", m.name, ErrModuleMoved)
	case m.owner != h.tsc:
		return nil, fmt.Errorf("add module %s: %w: parsed in another context", m.name, ErrEngineInvariant)
	case m.name == h.namespace:
		return nil, fmt.Errorf("add module %s: %w: name collides with the dylib namespace", m.name, ErrEngineInvariant)
	}

	if err := h.main.addModule(m); err != nil {
		return nil, fmt.Errorf("add module %s: %w", m.name, err)
	}
	m.moved = true
	h.moduleAdded = true
	h.logger.Debug("module added", zap.String("module", m.name), zap.String("dylib", h.main.name))
	return h.main, nil
}

// Lookup returns the function exported under name, materializing whatever
// it depends on. A name nothing defines or generates fails with
// *SymbolsNotFoundError.
func (h *Host) Lookup(ctx context.Context, name string) (ExecutorSymbol, error) {
	if h.closed {
		return ExecutorSymbol{}, fmt.Errorf("lookup %s: host %w", name, ErrClosed)
	}
	if s := h.State(); s != StateReady {
		return ExecutorSymbol{}, fmt.Errorf("lookup %s: %w (%s)", name, ErrNotReady, s)
	}
	return h.main.lookup(ctx, name)
}

// Close closes instantiated modules and releases all definitions. The
// Context stays open.
func (h *Host) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.main.close(ctx)
}
