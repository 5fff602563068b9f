package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/tetratelabs/jitbridge/internal/wasmbuild"
)

const helloOutput = "Oh hello, that's called from JITed code!\n"

const rustPanic = "_ZN4core9panicking5panic17h0123456789abcdefE"

const sumWat = `(module $sum
  (import "env" "hello" (func $hello))
  (func $sum (param i32 i32) (result i32)
    call $hello
    local.get 0
    local.get 1
    i32.add)
  (export "sum" (func $sum)))
`

func writeModule(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func sumModule(t *testing.T, c wasmbuild.SumConfig) string {
	t.Helper()
	return writeModule(t, "sum.wasm", wasmbuild.Sum(c).Encode())
}

// exitModule exports sum, which calls proc_exit(b) when a is zero.
func exitModule(t *testing.T) string {
	t.Helper()
	i32 := api.ValueTypeI32
	m := &wasmbuild.Module{
		Name: "exit",
		Types: []wasmbuild.FunctionType{
			{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
			{Params: []api.ValueType{i32}},
		},
		Imports: []wasmbuild.Import{{Module: "wasi_snapshot_preview1", Name: "proc_exit", TypeIndex: 1}},
		Functions: []wasmbuild.Function{{TypeIndex: 0, Body: []byte{
			wasmbuild.OpcodeLocalGet, 0, wasmbuild.OpcodeI32Eqz,
			wasmbuild.OpcodeIf, wasmbuild.BlockTypeEmpty,
			wasmbuild.OpcodeLocalGet, 1, wasmbuild.OpcodeCall, 0,
			wasmbuild.OpcodeEnd,
			wasmbuild.OpcodeLocalGet, 0, wasmbuild.OpcodeLocalGet, 1, wasmbuild.OpcodeI32Add,
			wasmbuild.OpcodeEnd,
		}}},
		Exports: []wasmbuild.Export{{Name: "sum", FuncIndex: 1}},
	}
	return writeModule(t, "exit.wasm", m.Encode())
}

func TestRun(t *testing.T) {
	declared := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{"hello"}})
	called := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{"_hello"}, CallImports: true})
	text := writeModule(t, "sum.wat", []byte(sumWat))

	configPath := filepath.Join(t.TempDir(), "jitbridge.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level = \"warn\"\n\n[input]\nbase = 16\n"), 0o600))

	tests := []struct {
		name   string
		args   []string
		stdIn  string
		stdOut string
	}{
		{
			name:   "declared hello",
			args:   []string{declared},
			stdIn:  "3\n4\nn\n",
			stdOut: "a = b = sum(3, 4) = 7\nAgain? (Y/n) ",
		},
		{
			name:   "called hello",
			args:   []string{called},
			stdIn:  "3\n4\nn\n",
			stdOut: "a = b = " + helloOutput + "sum(3, 4) = 7\nAgain? (Y/n) ",
		},
		{
			name:   "text module",
			args:   []string{text},
			stdIn:  "5\n5\nn\n",
			stdOut: "a = b = " + helloOutput + "sum(5, 5) = 10\nAgain? (Y/n) ",
		},
		{
			name:  "again",
			args:  []string{declared},
			stdIn: "5\n5\nY\n1\n1\nn\n",
			stdOut: "a = b = sum(5, 5) = 10\nAgain? (Y/n) \n" +
				"a = b = sum(1, 1) = 2\nAgain? (Y/n) ",
		},
		{
			name:   "EOF at again",
			args:   []string{declared},
			stdIn:  "5\n5\n",
			stdOut: "a = b = sum(5, 5) = 10\nAgain? (Y/n) \n",
		},
		{
			name:   "hex",
			args:   []string{declared, "-hex"},
			stdIn:  "a\n0xb\nn\n",
			stdOut: "a = b = sum(10, 11) = 21\nAgain? (Y/n) ",
		},
		{
			name:   "config",
			args:   []string{declared, "-config", configPath},
			stdIn:  "10\n10\nn\n",
			stdOut: "a = b = sum(16, 16) = 32\nAgain? (Y/n) ",
		},
		{
			name:   "flag overrides config",
			args:   []string{declared, "-config", configPath, "-hex=false"},
			stdIn:  "10\n10\nn\n",
			stdOut: "a = b = sum(10, 10) = 20\nAgain? (Y/n) ",
		},
		{
			name:   "reprompt",
			args:   []string{declared, "-reprompt"},
			stdIn:  "x\n1\n2\nn\n",
			stdOut: "a = not a base 10 integer: \"x\"\na = b = sum(1, 2) = 3\nAgain? (Y/n) ",
		},
		{
			name:   "interpreter with cache",
			args:   []string{declared, "-interp", "-cachedir", t.TempDir()},
			stdIn:  "3\n4\nn\n",
			stdOut: "a = b = sum(3, 4) = 7\nAgain? (Y/n) ",
		},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, tt.stdIn, tt.args)
			require.Equal(t, 0, exitCode, stdErr)
			require.Equal(t, tt.stdOut, stdOut)
		})
	}
}

func TestRun_Logging(t *testing.T) {
	path := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{"__hello", "unknown"}})

	_, _, stdErr := runMain(t, "", []string{path, "-log-level", "debug"})
	require.Contains(t, stdErr, "INFO\tundefined symbol redirected to host function\t"+
		`{"symbol": "hello", "mangled": "__hello", "host": "hello"}`)
	require.Contains(t, stdErr, "DEBUG\tundefined symbol left unresolved\t"+`{"mangled": "unknown"}`)

	_, _, stdErr = runMain(t, "", []string{path, "-log-level", "warn"})
	require.NotContains(t, stdErr, "redirected")
}

func TestRun_Trace(t *testing.T) {
	path := sumModule(t, wasmbuild.SumConfig{Name: "sum"})

	exitCode, _, stdErr := runMain(t, "3\n4\nn\n", []string{path, "-trace"})
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdErr, "--> sum.")
	require.Contains(t, stdErr, "(3,4)\n")
	require.Contains(t, stdErr, "<-- 7\n")
}

func TestRun_GuestExit(t *testing.T) {
	path := exitModule(t)

	exitCode, stdOut, _ := runMain(t, "1\n2\nY\n0\n3\n", []string{path})
	require.Equal(t, 3, exitCode)
	require.Equal(t, "a = b = sum(1, 2) = 3\nAgain? (Y/n) \na = b = ", stdOut)
}

func TestRun_RustPanic(t *testing.T) {
	path := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{rustPanic}, CallImports: true})

	exitCode, stdOut, stdErr := runMain(t, "1\n2\n", []string{path, "-rust-panic"})
	require.Equal(t, 1, exitCode)
	require.Equal(t, "a = b = ", stdOut)
	require.Contains(t, stdErr, "Panic in JITed code: "+strings.TrimLeft(rustPanic, "_")+"\n")

	exitCode, _, stdErr = runMain(t, "1\n2\n", []string{path})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, "error looking up sum: materialize sum: symbols not found: ["+rustPanic+"]")
}

func TestHelp(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"--help"}} {
		exitCode, _, stdErr := runMain(t, "", args)
		require.Equal(t, 0, exitCode)
		require.Contains(t, stdErr, "jitbridge\n\nUsage:")
		require.Contains(t, stdErr, "-rust-panic")
	}
}

func TestErrors(t *testing.T) {
	notWasmPath := writeModule(t, "bears.wasm", []byte("pooh"))
	sum := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{"hello"}})
	own := sumModule(t, wasmbuild.SumConfig{Name: "own", ExportHello: true})
	unknown := sumModule(t, wasmbuild.SumConfig{Name: "sum", Imports: []string{"hello", "unknown"}})
	env := writeModule(t, "env.wasm", wasmbuild.Sum(wasmbuild.SumConfig{Name: "env"}).Encode())

	tests := []struct {
		name    string
		message string
		args    []string
		stdIn   string
	}{
		{name: "no args", message: "missing path to module file", args: []string{}},
		{name: "flag without module", message: "missing path to module file before -interp", args: []string{"-interp"}},
		{name: "missing file", message: "error reading module file", args: []string{"non-existent.wasm"}},
		{name: "malformed header", message: "error in module parser: bears: ", args: []string{notWasmPath}},
		{name: "unknown flag", message: "flag provided but not defined: -bogus", args: []string{sum, "-bogus"}},
		{name: "extra argument", message: "unexpected arguments: [extra]", args: []string{sum, "extra"}},
		{name: "missing config", message: "error loading config: read config", args: []string{sum, "-config", "missing.toml"}},
		{name: "log level", message: `error loading config: invalid config: log_level "loud"`, args: []string{sum, "-log-level", "loud"}},
		{name: "empty namespace", message: "error loading config: invalid config: namespace is empty", args: []string{sum, "-namespace="}},
		{name: "namespace collision", message: "error adding module: add module env", args: []string{env}},
		{name: "unresolved import", message: "error looking up sum: materialize sum: symbols not found: [unknown]", args: []string{unknown}},
		{name: "unknown entry", message: "error looking up add: symbols not found: [add]", args: []string{sum, "-entry", "add"}},
		{name: "wrong signature", message: "error binding hello: signature mismatch", args: []string{own, "-entry", "hello"}},
		{name: "wrong namespace", message: "error looking up sum: materialize sum: module[env] not instantiated", args: []string{sum, "-namespace", "host"}},
		{name: "invalid input", message: `invalid input: "five": invalid syntax`, args: []string{sum}, stdIn: "five\n"},
		{name: "out of range", message: `invalid input: "2147483648": value out of range`, args: []string{sum}, stdIn: "2147483648\n"},
		{name: "EOF at operand", message: "invalid input: input ended before an operand was read", args: []string{sum}, stdIn: "1\n"},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			exitCode, _, stdErr := runMain(t, tt.stdIn, tt.args)

			require.Equal(t, 1, exitCode)
			require.Contains(t, stdErr, tt.message)
		})
	}
}

func TestErrors_FlagWithoutModule(t *testing.T) {
	exitCode, _, stdErr := runMain(t, "", []string{"-interp", "sum.wasm"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, "missing path to module file before -interp\n")
	require.Contains(t, stdErr, "Usage:\n  jitbridge <path to module file> [engine flags]")
	require.NotContains(t, stdErr, "error reading module file")
}

func TestErrors_ParseBeforeLookup(t *testing.T) {
	path := writeModule(t, "sum.wasm", []byte("\x00asm\x02\x00\x00\x00"))

	exitCode, stdOut, stdErr := runMain(t, "3\n4\nn\n", []string{path})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stdErr, "error in module parser")
	require.NotContains(t, stdErr, "redirected")
	require.Empty(t, stdOut)
}

func runMain(t *testing.T, stdIn string, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() {
		os.Args = oldArgs
	})
	os.Args = append([]string{"jitbridge"}, args...)

	var exitCode int
	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	var exited bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				exited = true
			}
		}()
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		doMain(strings.NewReader(stdIn), stdOut, stdErr, func(code int) {
			exitCode = code
			panic(code)
		})
	}()

	require.True(t, exited)

	return exitCode, stdOut.String(), stdErr.String()
}
