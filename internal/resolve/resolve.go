// Package resolve maps canonical symbol names to the host functions that stand
// in for symbols a module leaves undefined.
package resolve

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// HostFunc is a natively implemented function that can be bound to an
// undefined import.
type HostFunc struct {
	// Name is used in logs and as the debug name of the exported host function.
	Name string

	// Params and Results are the fixed signature of Fn. They are ignored when
	// Generic is true.
	Params, Results []api.ValueType

	// Generic means Fn accepts whatever signature the importing module
	// declares.
	Generic bool

	Fn api.GoModuleFunction
}

// Func resolves a canonical name (leading underscores already removed) to a
// host function, or nil when the name is unresolved. Implementations must be
// deterministic and free of side effects.
type Func func(canonical string) *HostFunc

// Hello is the fallback for the symbol "hello".
var Hello = &HostFunc{
	Name: "hello",
	Fn: api.GoModuleFunc(func(ctx context.Context, _ api.Module, _ []uint64) {
		_, _ = io.WriteString(stdioFrom(ctx).Stdout, "Oh hello, that's called from JITed code!\n")
	}),
}

// Default knows exactly one fallback: "hello" maps to Hello. Matching is case
// sensitive.
func Default(canonical string) *HostFunc {
	if canonical == "hello" {
		return Hello
	}
	return nil
}

// rustPanicPrefix is the canonical prefix of core::panicking::* in the legacy
// Rust mangling scheme.
const rustPanicPrefix = "ZN4core9panicking"

// RustPanic redirects the Rust core panic entry points to a host function that
// reports the panic on stderr and exits the calling module with code 1.
func RustPanic(canonical string) *HostFunc {
	if !strings.HasPrefix(canonical, rustPanicPrefix) {
		return nil
	}
	return &HostFunc{
		Name:    canonical,
		Generic: true,
		Fn: api.GoModuleFunc(func(ctx context.Context, mod api.Module, _ []uint64) {
			fmt.Fprintf(stdioFrom(ctx).Stderr, "Panic in JITed code: %s\n", canonical)
			_ = mod.CloseWithExitCode(ctx, 1)
			panic(sys.NewExitError(1))
		}),
	}
}

// Chain returns a Func trying each resolver in order. The first hit wins.
func Chain(resolvers ...Func) Func {
	return func(canonical string) *HostFunc {
		for _, r := range resolvers {
			if f := r(canonical); f != nil {
				return f
			}
		}
		return nil
	}
}

// Stdio are the streams host functions write to.
type Stdio struct {
	Stdout, Stderr io.Writer
}

type stdioKey struct{}

// WithStdio returns a context whose host function calls write to the given
// streams instead of os.Stdout and os.Stderr.
func WithStdio(ctx context.Context, stdout, stderr io.Writer) context.Context {
	return context.WithValue(ctx, stdioKey{}, Stdio{Stdout: stdout, Stderr: stderr})
}

func stdioFrom(ctx context.Context) Stdio {
	s, _ := ctx.Value(stdioKey{}).(Stdio)
	if s.Stdout == nil {
		s.Stdout = os.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = os.Stderr
	}
	return s
}
