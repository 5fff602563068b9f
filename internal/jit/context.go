package jit

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Context is the compilation arena: it owns the wazero.Runtime every Module
// is compiled into and every Host executes in. It must outlive all calls
// into compiled code.
type Context struct {
	runtime wazero.Runtime
	closed  bool
}

// NewContext creates a Context for the given engine configuration.
//
// Note: ctx is retained by wazero for its own bookkeeping, such as a function
// listener factory stored under experimental.FunctionListenerFactoryKey.
func NewContext(ctx context.Context, config wazero.RuntimeConfig) *Context {
	return &Context{runtime: wazero.NewRuntimeWithConfig(ctx, config)}
}

// Runtime returns the underlying runtime, for instantiating host-provided
// modules such as WASI.
func (c *Context) Runtime() wazero.Runtime {
	return c.runtime
}

// ParseModule compiles binary into a Module owned by this Context. On failure
// it returns a *Diagnostic; the caller decides whether that is fatal.
func (c *Context) ParseModule(ctx context.Context, name string, binary []byte) (*Module, error) {
	if c.closed {
		return nil, fmt.Errorf("parse %s: context %w", name, ErrClosed)
	}
	compiled, err := c.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, &Diagnostic{Module: name, Description: err.Error(), Err: err}
	}
	return &Module{owner: c, name: name, compiled: compiled}, nil
}

// Close releases the runtime and everything compiled or instantiated in it.
func (c *Context) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.runtime.Close(ctx)
}

// Module is a parsed module. The caller owns it until Host.AddModule, after
// which it belongs to the host and must not be added again.
type Module struct {
	owner    *Context
	name     string
	compiled wazero.CompiledModule

	moved         bool
	materializing bool
	instance      api.Module
}

// Name returns the name the module is instantiated under.
func (m *Module) Name() string {
	return m.name
}

// ImportedFunctions returns the function imports the module declares.
func (m *Module) ImportedFunctions() []api.FunctionDefinition {
	return m.compiled.ImportedFunctions()
}

// ExportedFunctions returns the function exports the module declares.
func (m *Module) ExportedFunctions() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}
