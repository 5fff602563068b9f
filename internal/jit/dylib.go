package jit

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/tetratelabs/jitbridge/internal/resolve"
	"github.com/tetratelabs/jitbridge/internal/symbol"
)

// Dylib is a symbol namespace. Its definitions satisfy the function imports
// modules declare from the wasm module named Name, and its exported names are
// what Host.Lookup finds.
type Dylib struct {
	host *Host
	name string

	defs  map[string]*definition
	order []string

	modules    []*Module
	generators []DefinitionGenerator

	// link is the host module instantiated under name once a module or a
	// lookup needs it. linkExports are the names it exports.
	link        api.Module
	linkExports map[string]bool

	// late holds a host module per absolute definition looked up after link
	// was instantiated.
	late map[string]api.Module
}

type definition struct {
	// name is the reference this definition owns.
	name  *symbol.Entry
	flags SymbolFlags

	// Exactly one of host or module is set.
	host   *resolve.HostFunc
	module *Module
}

func newDylib(h *Host, name string) *Dylib {
	return &Dylib{host: h, name: name, defs: map[string]*definition{}}
}

// Name returns the import module name this dylib satisfies.
func (jd *Dylib) Name() string {
	return jd.name
}

// AddGenerator attaches g. Generators are consulted in the order added.
func (jd *Dylib) AddGenerator(g DefinitionGenerator) {
	jd.generators = append(jd.generators, g)
	jd.host.generatorAttached = true
}

// DefinitionInfo describes one definition for inspection.
type DefinitionInfo struct {
	Name  string
	Flags SymbolFlags
	// Host is set for absolute definitions.
	Host *resolve.HostFunc
	// Module is the defining module for module exports.
	Module string
}

// Definitions returns the current definitions in the order they were first
// defined.
func (jd *Dylib) Definitions() []DefinitionInfo {
	ret := make([]DefinitionInfo, 0, len(jd.order))
	for _, name := range jd.order {
		def := jd.defs[name]
		info := DefinitionInfo{Name: name, Flags: def.flags, Host: def.host}
		if def.module != nil {
			info.Module = def.module.name
		}
		ret = append(ret, info)
	}
	return ret
}

// Define adds the absolute symbols in mu. Define takes ownership of mu and
// the name references it holds, whether or not it succeeds.
//
// A weak symbol never replaces an existing definition. A strong symbol
// replaces a weak one and conflicts with a strong one.
func (jd *Dylib) Define(mu *AbsoluteSymbolsUnit) error {
	for _, p := range mu.pairs {
		name := p.Name.String()
		if p.Sym.Host == nil {
			mu.dispose()
			return fmt.Errorf("define %s: %w: absolute symbol without host function", name, ErrEngineInvariant)
		}
		if err := jd.checkReplace(name, p.Sym.Flags); err != nil {
			mu.dispose()
			return err
		}
	}

	for _, p := range mu.pairs {
		jd.put(&definition{name: p.Name, flags: p.Sym.Flags, host: p.Sym.Host})
	}
	mu.pairs = nil
	return nil
}

// checkReplace returns an error if a definition with flags cannot be put
// under name.
func (jd *Dylib) checkReplace(name string, flags SymbolFlags) error {
	existing, ok := jd.defs[name]
	if !ok || flags&FlagWeak != 0 {
		return nil
	}
	if existing.flags&FlagWeak == 0 {
		return fmt.Errorf("define %s: %w", name, ErrDuplicateDefinition)
	}
	if jd.linkExports[name] || jd.late[name] != nil {
		return fmt.Errorf("define %s: %w", name, ErrDylibSealed)
	}
	return nil
}

// put stores def, assuming checkReplace passed. A weak def that loses to an
// existing definition releases its reference.
func (jd *Dylib) put(def *definition) {
	name := def.name.String()
	existing, ok := jd.defs[name]
	switch {
	case !ok:
		jd.defs[name] = def
		jd.order = append(jd.order, name)
	case def.flags&FlagWeak != 0:
		def.name.Release()
	default:
		existing.name.Release()
		jd.defs[name] = def
	}
}

// addModule defines a strong, exported symbol for each function export of m.
func (jd *Dylib) addModule(m *Module) error {
	exports := m.ExportedFunctions()
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := jd.checkReplace(name, FlagExported|FlagCallable); err != nil {
			return err
		}
	}
	for _, name := range names {
		jd.put(&definition{name: jd.host.pool.Intern(name), flags: FlagExported | FlagCallable, module: m})
	}
	jd.modules = append(jd.modules, m)
	return nil
}

// generate offers the names not yet defined to each generator in turn.
func (jd *Dylib) generate(ctx context.Context, names LookupSet) error {
	for _, g := range jd.generators {
		pending := jd.undefined(names)
		if len(pending) == 0 {
			return nil
		}
		if err := g.TryToGenerate(ctx, jd, pending); err != nil {
			return fmt.Errorf("generate %v: %w", pending.Names(), err)
		}
	}
	return nil
}

func (jd *Dylib) undefined(names LookupSet) (ret LookupSet) {
	for _, e := range names {
		if _, ok := jd.defs[e.String()]; !ok {
			ret = append(ret, e)
		}
	}
	return
}

// lookup finds name, generating and materializing as needed.
func (jd *Dylib) lookup(ctx context.Context, name string) (ExecutorSymbol, error) {
	def, ok := jd.defs[name]
	if !ok {
		req := jd.host.pool.Intern(name)
		err := jd.generate(ctx, LookupSet{req})
		req.Release()
		if err != nil {
			return ExecutorSymbol{}, fmt.Errorf("lookup %s: %w", name, err)
		}
		if def, ok = jd.defs[name]; !ok {
			return ExecutorSymbol{}, &SymbolsNotFoundError{Names: []string{name}}
		}
	}

	if def.module != nil {
		if err := jd.materialize(ctx, def.module); err != nil {
			return ExecutorSymbol{}, err
		}
		return ExecutorSymbol{Name: name, Flags: def.flags, Func: def.module.instance.ExportedFunction(name)}, nil
	}

	// Pending modules shape the link module, so materialize them first.
	for _, m := range jd.modules {
		if err := jd.materialize(ctx, m); err != nil {
			return ExecutorSymbol{}, err
		}
	}
	if def.host.Generic {
		return ExecutorSymbol{}, fmt.Errorf("lookup %s: %w", name, ErrGenericSignature)
	}
	if err := jd.ensureLink(ctx, nil); err != nil {
		return ExecutorSymbol{}, err
	}
	if jd.linkExports[name] {
		return ExecutorSymbol{Name: name, Flags: def.flags, Func: jd.link.ExportedFunction(name)}, nil
	}
	fn, err := jd.lateFunction(ctx, name, def)
	if err != nil {
		return ExecutorSymbol{}, fmt.Errorf("lookup %s: %w", name, err)
	}
	return ExecutorSymbol{Name: name, Flags: def.flags, Func: fn}, nil
}

// lateFunction serves an absolute definition made after the link module was
// instantiated from its own host module, named "<namespace>$<name>".
func (jd *Dylib) lateFunction(ctx context.Context, name string, def *definition) (api.Function, error) {
	if mod, ok := jd.late[name]; ok {
		return mod.ExportedFunction(name), nil
	}
	mod, err := jd.host.tsc.runtime.NewHostModuleBuilder(jd.name+"$"+name).
		NewFunctionBuilder().WithGoModuleFunction(def.host.Fn, def.host.Params, def.host.Results).WithName(name).Export(name).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module for %s: %w", name, err)
	}
	if jd.late == nil {
		jd.late = map[string]api.Module{}
	}
	jd.late[name] = mod
	jd.host.logger.Debug("late host module instantiated", zap.String("dylib", jd.name), zap.String("symbol", name))
	return mod.ExportedFunction(name), nil
}

// close releases every name reference held by definitions.
func (jd *Dylib) close(ctx context.Context) (err error) {
	for _, m := range jd.modules {
		if m.instance != nil {
			if e := m.instance.Close(ctx); e != nil && err == nil {
				err = e
			}
			m.instance = nil
		}
	}
	if jd.link != nil {
		if e := jd.link.Close(ctx); e != nil && err == nil {
			err = e
		}
		jd.link = nil
	}
	for _, mod := range jd.late {
		if e := mod.Close(ctx); e != nil && err == nil {
			err = e
		}
	}
	jd.late = nil
	for _, name := range jd.order {
		jd.defs[name].name.Release()
	}
	jd.defs, jd.order, jd.modules = map[string]*definition{}, nil, nil
	jd.host.logger.Debug("dylib closed", zap.String("dylib", jd.name))
	return
}
