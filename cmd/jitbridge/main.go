package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/experimental/logging"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/tetratelabs/jitbridge/internal/bridge"
	"github.com/tetratelabs/jitbridge/internal/config"
	"github.com/tetratelabs/jitbridge/internal/jit"
	"github.com/tetratelabs/jitbridge/internal/loader"
	"github.com/tetratelabs/jitbridge/internal/logger"
	"github.com/tetratelabs/jitbridge/internal/resolve"
	"github.com/tetratelabs/jitbridge/internal/runner"
)

func main() {
	doMain(os.Stdin, os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdIn io.Reader, stdOut io.Writer, stdErr logging.Writer, exit func(code int)) {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(stdErr, "missing path to module file")
		printUsage(stdErr, engineFlags(&flagValues{}))
		exit(1)
	}
	if args[0] == "-h" || args[0] == "--help" {
		printUsage(stdErr, engineFlags(&flagValues{}))
		exit(0)
	}
	if strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(stdErr, "missing path to module file before %s\n", args[0])
		printUsage(stdErr, engineFlags(&flagValues{}))
		exit(1)
	}
	modulePath := args[0]

	var v flagValues
	flags := engineFlags(&v)
	flags.SetOutput(stdErr)
	flags.Usage = func() { printUsage(stdErr, flags) }
	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			exit(0)
		}
		exit(1)
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stdErr, "unexpected arguments: %v\n", flags.Args())
		printUsage(stdErr, flags)
		exit(1)
	}

	cfg, err := loadConfig(flags, &v)
	if err != nil {
		fmt.Fprintf(stdErr, "error loading config: %v\n", err)
		exit(1)
	}

	log, err := logger.New(cfg.LogLevel, stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid log level: %v\n", err)
		exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := resolve.WithStdio(context.Background(), stdOut, stdErr)
	ctx = maybeTrace(ctx, cfg.Trace, stdErr)

	var rtc wazero.RuntimeConfig
	if cfg.Interpreter {
		rtc = wazero.NewRuntimeConfigInterpreter()
	} else {
		rtc = wazero.NewRuntimeConfig()
	}
	if cache := maybeUseCacheDir(cfg.CacheDir, stdErr, exit); cache != nil {
		rtc = rtc.WithCompilationCache(cache)
	}

	tsc := jit.NewContext(ctx, rtc)
	defer tsc.Close(ctx)

	m, err := loader.Load(ctx, tsc, modulePath)
	if err != nil {
		var diag *jit.Diagnostic
		if errors.As(err, &diag) {
			fmt.Fprintf(stdErr, "error in module parser: %v\n", diag)
		} else {
			fmt.Fprintf(stdErr, "error reading module file: %v\n", err)
		}
		exit(1)
	}

	if detectImports(m.ImportedFunctions()) {
		wasi_snapshot_preview1.MustInstantiate(ctx, tsc.Runtime())
	}

	// Modules are libraries: only a reactor initializer runs at instantiation.
	conf := wazero.NewModuleConfig().
		WithStdout(stdOut).
		WithStderr(stdErr).
		WithStdin(stdIn).
		WithRandSource(rand.Reader).
		WithSysNanosleep().
		WithSysNanotime().
		WithSysWalltime().
		WithArgs(m.Name()).
		WithStartFunctions("_initialize")

	host, err := jit.NewHost(tsc, jit.WithNamespace(cfg.Namespace), jit.WithLogger(log), jit.WithModuleConfig(conf))
	if err != nil {
		fmt.Fprintf(stdErr, "error creating host: %v\n", err)
		exit(1)
	}
	defer host.Close(ctx)

	jd, err := host.AddModule(m)
	if err != nil {
		fmt.Fprintf(stdErr, "error adding module: %v\n", err)
		exit(1)
	}

	r := resolve.Default
	if cfg.RustPanic {
		r = resolve.Chain(resolve.Default, resolve.RustPanic)
	}
	jd.AddGenerator(bridge.New(r, bridge.WithLogger(log)))

	sym, err := host.Lookup(ctx, cfg.Entry)
	if err != nil {
		exitOnGuestExit(err, exit)
		fmt.Fprintf(stdErr, "error looking up %s: %v\n", cfg.Entry, err)
		exit(1)
	}
	log.Debug("entry point resolved", zap.String("symbol", sym.Name), zap.Stringer("flags", sym.Flags))

	sum, err := runner.BindBinaryI32(sym.Func)
	if err != nil {
		fmt.Fprintf(stdErr, "error binding %s: %v\n", cfg.Entry, err)
		exit(1)
	}

	in, closeIn := lineReader(stdIn, stdOut)
	defer closeIn()

	loop := runner.New(in, stdOut, runner.WithBase(cfg.Input.Base), runner.WithReprompt(cfg.Input.Reprompt))
	if err = loop.Loop(ctx, sum); err != nil {
		closeIn()
		exitOnGuestExit(err, exit)
		var inputErr *runner.InputError
		if errors.As(err, &inputErr) {
			fmt.Fprintf(stdErr, "invalid input: %v\n", inputErr)
		} else {
			fmt.Fprintf(stdErr, "error calling %s: %v\n", cfg.Entry, err)
		}
		exit(1)
	}
	exit(0)
}

// flagValues are the engine flags. Only flags set explicitly override the
// config file.
type flagValues struct {
	config, entry, namespace, cacheDir, logLevel string

	interp, trace, rustPanic, hex, reprompt bool
}

func engineFlags(v *flagValues) *flag.FlagSet {
	d := config.Default()
	flags := flag.NewFlagSet("jitbridge", flag.ContinueOnError)
	flags.StringVar(&v.config, "config", "", "TOML file to read defaults from. Flags override its values.")
	flags.StringVar(&v.entry, "entry", d.Entry, "exported (i32, i32) -> i32 function to call")
	flags.StringVar(&v.namespace, "namespace", d.Namespace, "import module undefined symbols are resolved in")
	flags.BoolVar(&v.interp, "interp", false, "force interpreter")
	flags.StringVar(&v.cacheDir, "cachedir", "", "Writeable directory for native code compiled from wasm. "+
		"Contents are re-used for the same version of wazero.")
	flags.BoolVar(&v.trace, "trace", false, "log guest and host function calls to stderr")
	flags.BoolVar(&v.rustPanic, "rust-panic", false, "redirect Rust core::panicking symbols to a host panic handler")
	flags.BoolVar(&v.hex, "hex", false, "read operands in base 16")
	flags.BoolVar(&v.reprompt, "reprompt", false, "ask again for an operand that is not an integer")
	flags.StringVar(&v.logLevel, "log-level", d.LogLevel, "one of debug, info, warn or error")
	return flags
}

// loadConfig reads the config file, if any, then applies the flags set on
// the command line.
func loadConfig(flags *flag.FlagSet, v *flagValues) (cfg config.Config, err error) {
	cfg = config.Default()
	if v.config != "" {
		if cfg, err = config.Load(v.config); err != nil {
			return
		}
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "entry":
			cfg.Entry = v.entry
		case "namespace":
			cfg.Namespace = v.namespace
		case "interp":
			cfg.Interpreter = v.interp
		case "cachedir":
			cfg.CacheDir = v.cacheDir
		case "trace":
			cfg.Trace = v.trace
		case "rust-panic":
			cfg.RustPanic = v.rustPanic
		case "hex":
			if v.hex {
				cfg.Input.Base = 16
			} else {
				cfg.Input.Base = 10
			}
		case "reprompt":
			cfg.Input.Reprompt = v.reprompt
		case "log-level":
			cfg.LogLevel = v.logLevel
		}
	})
	err = cfg.Validate()
	return
}

func detectImports(imports []api.FunctionDefinition) (needsWASI bool) {
	for _, f := range imports {
		if moduleName, _, _ := f.Import(); moduleName == wasi_snapshot_preview1.ModuleName {
			return true
		}
	}
	return
}

func maybeTrace(ctx context.Context, trace bool, stdErr logging.Writer) context.Context {
	if trace {
		return context.WithValue(ctx, experimental.FunctionListenerFactoryKey{}, logging.NewLoggingListenerFactory(stdErr))
	}
	return ctx
}

func maybeUseCacheDir(cacheDir string, stdErr io.Writer, exit func(code int)) (cache wazero.CompilationCache) {
	if cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			fmt.Fprintf(stdErr, "invalid cachedir: %v\n", err)
			exit(1)
		}
	}
	return
}

// lineReader uses line editing when stdIn is the terminal.
func lineReader(stdIn io.Reader, stdOut io.Writer) (runner.LineReader, func()) {
	if f, ok := stdIn.(*os.File); ok && f == os.Stdin && isTerminal(f) && liner.TerminalSupported() {
		t := runner.NewTerminal()
		var closed bool
		return t, func() {
			if !closed {
				closed = true
				_ = t.Close()
			}
		}
	}
	return runner.NewScanner(stdIn, stdOut), func() {}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&fs.ModeCharDevice != 0
}

// exitOnGuestExit exits with the guest's code when err is a guest exit.
func exitOnGuestExit(err error, exit func(code int)) {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		exit(int(exitErr.ExitCode()))
	}
}

func printUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "jitbridge")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  jitbridge <path to module file> [engine flags]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Loads a WebAssembly module (binary or text), redirects its undefined")
	fmt.Fprintln(stdErr, "symbols to host functions and calls its exported sum interactively.")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Engine flags:")
	flags.SetOutput(stdErr)
	flags.PrintDefaults()
}
