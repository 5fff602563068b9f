// Package loader reads modules from storage into a jit.Context.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/watzero"

	"github.com/tetratelabs/jitbridge/internal/jit"
	"github.com/tetratelabs/jitbridge/internal/wasmbuild"
)

// Load reads the file at path and parses it into tsc. The module is named
// after the file, without extension.
//
// A read failure is returned as is (wrapping *fs.PathError). A parse failure
// is a *jit.Diagnostic.
func Load(ctx context.Context, tsc *jit.Context, path string) (*jit.Module, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return Parse(ctx, tsc, ModuleName(path), buf)
}

// ModuleName returns the module name Load uses for path.
func ModuleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse parses buf, in the binary format or the text format, into tsc.
func Parse(ctx context.Context, tsc *jit.Context, name string, buf []byte) (*jit.Module, error) {
	if IsText(buf) {
		return ParseText(ctx, tsc, name, string(buf))
	}
	return tsc.ParseModule(ctx, name, buf)
}

// ParseText converts the WebAssembly text format (%.wat) to binary and parses
// the result into tsc.
func ParseText(ctx context.Context, tsc *jit.Context, name, wat string) (*jit.Module, error) {
	binary, err := watzero.Wat2Wasm(wat)
	if err != nil {
		return nil, &jit.Diagnostic{Module: name, Description: err.Error(), Err: err}
	}
	return tsc.ParseModule(ctx, name, binary)
}

// Build encodes m and parses it into tsc. The module is named after m.Name,
// or "module" if that is empty.
func Build(ctx context.Context, tsc *jit.Context, m *wasmbuild.Module) (*jit.Module, error) {
	name := m.Name
	if name == "" {
		name = "module"
	}
	return tsc.ParseModule(ctx, name, m.Encode())
}

// IsText reports whether buf looks like the text format: after whitespace it
// starts with an s-expression or a comment. Anything else, including
// garbage, is treated as binary.
func IsText(buf []byte) bool {
	if bytes.HasPrefix(buf, wasmbuild.Magic) {
		return false
	}
	trimmed := bytes.TrimLeft(buf, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("(")) || bytes.HasPrefix(trimmed, []byte(";;"))
}
