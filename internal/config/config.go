// Package config reads the TOML file the harness can be configured with.
// Flags given on the command line override it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the harness configuration.
type Config struct {
	// Entry is the exported function the loop calls.
	Entry string `toml:"entry"`
	// Namespace is the import module undefined symbols are resolved in.
	Namespace string `toml:"namespace"`
	// Interpreter forces the interpreter instead of the compiler.
	Interpreter bool `toml:"interpreter"`
	// CacheDir, when set, persists compiled code across runs.
	CacheDir string `toml:"cache_dir"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	// Trace logs every guest and host function call to stderr.
	Trace bool `toml:"trace"`
	// RustPanic redirects core::panicking symbols to a host panic handler.
	RustPanic bool `toml:"rust_panic"`

	Input Input `toml:"input"`
}

// Input configures how operands are read.
type Input struct {
	// Base is 10 or 16.
	Base int `toml:"base"`
	// Reprompt asks again for an operand that does not parse.
	Reprompt bool `toml:"reprompt"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{
		Entry:     "sum",
		Namespace: "env",
		LogLevel:  "info",
		Input:     Input{Base: 10},
	}
}

// Load decodes the file at path over Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(buf)
}

// Parse decodes buf over Default and validates the result.
func Parse(buf []byte) (Config, error) {
	c := Default()
	d := toml.NewDecoder(bytes.NewReader(buf))
	d.DisallowUnknownFields()
	if err := d.Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("parse config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate returns an error describing the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Entry == "":
		return errors.New("invalid config: entry is empty")
	case c.Namespace == "":
		return errors.New("invalid config: namespace is empty")
	case c.Input.Base != 10 && c.Input.Base != 16:
		return fmt.Errorf("invalid config: input.base %d is not 10 or 16", c.Input.Base)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log_level %q is not debug, info, warn or error", c.LogLevel)
	}
	return nil
}
