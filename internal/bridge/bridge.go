// Package bridge is the definition generator that redirects undefined symbols
// to host functions.
//
// For each requested name the generator strips linker decoration, asks a
// resolve.Func for a host function, and defines a weak absolute symbol for
// each hit. Weak definitions yield to anything the module defines itself, so
// the fallback only fires for genuinely undefined references. Misses are left
// alone: a later lookup reports them as not found.
package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tetratelabs/jitbridge/internal/jit"
	"github.com/tetratelabs/jitbridge/internal/resolve"
	"github.com/tetratelabs/jitbridge/internal/symbol"
)

// Redirect pairs a requested name with its host function.
type Redirect struct {
	// Name is the borrowed request entry.
	Name *symbol.Entry
	// Canonical is Name without leading underscores.
	Canonical string
	Host      *resolve.HostFunc
}

// Plan resolves names in request order, skipping misses. It has no side
// effects and takes no references.
func Plan(names jit.LookupSet, r resolve.Func) (ret []Redirect) {
	for _, name := range names {
		canonical := symbol.DropLeadingUnderscores(name.String())
		if host := r(canonical); host != nil {
			ret = append(ret, Redirect{Name: name, Canonical: canonical, Host: host})
		}
	}
	return
}

// Generator implements jit.DefinitionGenerator. It holds no mutable state, so
// any number of calls, repeated or nested, are safe.
type Generator struct {
	resolve resolve.Func
	logger  *zap.Logger
}

var _ jit.DefinitionGenerator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger redirects are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New returns a Generator resolving through r.
func New(r resolve.Func, opts ...Option) *Generator {
	g := &Generator{resolve: r, logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// TryToGenerate defines one weak absolute symbol per resolved name, in
// request order. A definition the dylib rejects is an engine invariant
// violation.
func (g *Generator) TryToGenerate(_ context.Context, jd *jit.Dylib, names jit.LookupSet) error {
	plan := Plan(names, g.resolve)
	if len(plan) < len(names) {
		g.logUnresolved(names, plan)
	}
	for _, r := range plan {
		g.logger.Info("undefined symbol redirected to host function",
			zap.String("symbol", r.Canonical),
			zap.String("mangled", r.Name.String()),
			zap.String("host", r.Host.Name))
		if err := install(jd, r); err != nil {
			return err
		}
	}
	return nil
}

// install hands the dylib a new reference to the request's name: the
// definition owns it independently of the request.
func install(jd *jit.Dylib, r Redirect) error {
	pair := jit.SymbolMapPair{
		Name: r.Name.Retain(),
		Sym:  jit.EvaluatedSymbol{Host: r.Host, Flags: jit.FlagExported | jit.FlagCallable | jit.FlagWeak},
	}
	if err := jd.Define(jit.AbsoluteSymbols(pair)); err != nil {
		return fmt.Errorf("%w: redirect %s: %w", jit.ErrEngineInvariant, r.Name, err)
	}
	return nil
}

func (g *Generator) logUnresolved(names jit.LookupSet, plan []Redirect) {
	resolved := make(map[*symbol.Entry]bool, len(plan))
	for _, r := range plan {
		resolved[r.Name] = true
	}
	for _, name := range names {
		if !resolved[name] {
			g.logger.Debug("undefined symbol left unresolved", zap.String("mangled", name.String()))
		}
	}
}
