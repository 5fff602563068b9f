package jit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEngineInvariant marks failures that indicate a broken invariant of the
	// host rather than bad user input.
	ErrEngineInvariant = errors.New("engine invariant violation")

	// ErrNotReady is returned by Host.Lookup before a module was added and a
	// generator attached.
	ErrNotReady = errors.New("host is not ready for lookup")

	// ErrModuleMoved is returned when a Module is added after ownership already
	// passed to a Host.
	ErrModuleMoved = errors.New("module was already added to a host")

	// ErrDuplicateDefinition is returned when two strong definitions of the
	// same name meet in a dylib.
	ErrDuplicateDefinition = errors.New("duplicate definition")

	// ErrDylibSealed is returned when a dylib needs to export a name after its
	// link module was instantiated.
	ErrDylibSealed = errors.New("dylib link module already instantiated")

	// ErrGenericSignature is returned when looking up a host function that
	// adopts the signature of whatever imports it, so has none of its own.
	ErrGenericSignature = errors.New("generic host function has no fixed signature")

	// ErrClosed is returned on use of a closed Context or Host.
	ErrClosed = errors.New("closed")
)

// Diagnostic describes why a module could not be parsed. It carries the
// description the engine reported; no partially parsed module exists.
type Diagnostic struct {
	// Module is the name the caller gave the module.
	Module string
	// Description is the engine's description of the problem.
	Description string
	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Module, d.Description)
}

// Unwrap returns the underlying error.
func (d *Diagnostic) Unwrap() error {
	return d.Err
}

// SymbolsNotFoundError lists names no definition or generator could supply.
type SymbolsNotFoundError struct {
	Names []string
}

// Error implements error.
func (e *SymbolsNotFoundError) Error() string {
	return fmt.Sprintf("symbols not found: [%s]", strings.Join(e.Names, ", "))
}
