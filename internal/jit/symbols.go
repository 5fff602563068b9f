package jit

import (
	"context"
	"strings"

	"github.com/tetratelabs/jitbridge/internal/resolve"
	"github.com/tetratelabs/jitbridge/internal/symbol"
)

// SymbolFlags describe the binding of a definition.
type SymbolFlags uint8

const (
	// FlagExported marks a definition visible to lookups from outside the dylib.
	FlagExported SymbolFlags = 1 << iota
	// FlagWeak marks a definition that yields to any strong definition of the
	// same name.
	FlagWeak
	// FlagCallable marks a function definition.
	FlagCallable
)

// String implements fmt.Stringer.
func (f SymbolFlags) String() string {
	var names []string
	if f&FlagExported != 0 {
		names = append(names, "exported")
	}
	if f&FlagWeak != 0 {
		names = append(names, "weak")
	}
	if f&FlagCallable != 0 {
		names = append(names, "callable")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// EvaluatedSymbol is an absolute symbol: its implementation is already known.
type EvaluatedSymbol struct {
	Host  *resolve.HostFunc
	Flags SymbolFlags
}

// SymbolMapPair binds a name to an absolute symbol. The pair owns one
// reference to Name.
type SymbolMapPair struct {
	Name *symbol.Entry
	Sym  EvaluatedSymbol
}

// AbsoluteSymbolsUnit is a materialization unit of already evaluated symbols.
// Dylib.Define takes ownership of it, including every name reference it holds.
type AbsoluteSymbolsUnit struct {
	pairs []SymbolMapPair
}

// AbsoluteSymbols returns a unit defining the given pairs.
func AbsoluteSymbols(pairs ...SymbolMapPair) *AbsoluteSymbolsUnit {
	return &AbsoluteSymbolsUnit{pairs: pairs}
}

// dispose releases the name references still held by the unit.
func (u *AbsoluteSymbolsUnit) dispose() {
	for _, p := range u.pairs {
		p.Name.Release()
	}
	u.pairs = nil
}

// LookupSet is an ordered request of names. The entries are borrowed: a
// generator that hands a name back to the dylib must Retain it first.
type LookupSet []*symbol.Entry

// Names returns the textual form of each entry, in order.
func (s LookupSet) Names() []string {
	ret := make([]string, len(s))
	for i, e := range s {
		ret[i] = e.String()
	}
	return ret
}

// DefinitionGenerator supplies definitions for names a dylib could not find.
// It is called once per batch of missing names and may be called again for
// the same names. Implementations should Define what they can and leave the
// rest; returning an error aborts the lookup.
type DefinitionGenerator interface {
	TryToGenerate(ctx context.Context, jd *Dylib, names LookupSet) error
}

// DefinitionGeneratorFunc adapts a function to DefinitionGenerator.
type DefinitionGeneratorFunc func(ctx context.Context, jd *Dylib, names LookupSet) error

// TryToGenerate calls f.
func (f DefinitionGeneratorFunc) TryToGenerate(ctx context.Context, jd *Dylib, names LookupSet) error {
	return f(ctx, jd, names)
}
