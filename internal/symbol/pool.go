// Package symbol holds the interned symbol names shared between a dylib and
// the definition generators that populate it.
package symbol

import "fmt"

// Pool interns symbol names. Each Entry returned by Intern carries one
// reference which the caller must Release.
//
// Note: A Pool is not safe for concurrent use.
type Pool struct {
	entries map[string]*Entry
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{entries: map[string]*Entry{}}
}

// Intern returns the entry for name, acquiring one reference on behalf of the
// caller.
func (p *Pool) Intern(name string) *Entry {
	if e, ok := p.entries[name]; ok {
		e.refs++
		return e
	}
	e := &Entry{pool: p, name: name, refs: 1}
	p.entries[name] = e
	return e
}

// Len returns the count of entries with at least one live reference.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Entry is a refcounted handle to an interned name. Every holder of an Entry
// owns exactly the references it acquired via Pool.Intern or Retain.
type Entry struct {
	pool *Pool
	name string
	refs int
}

// String returns the linker-mangled text of the name.
func (e *Entry) String() string {
	return e.name
}

// RefCount returns the number of live references.
func (e *Entry) RefCount() int {
	return e.refs
}

// Retain acquires an additional reference and returns the receiver.
func (e *Entry) Retain() *Entry {
	if e.refs <= 0 {
		panic(fmt.Errorf("BUG: retain of released symbol %q", e.name))
	}
	e.refs++
	return e
}

// Release drops one reference. The entry leaves the pool when the last
// reference is released.
func (e *Entry) Release() {
	if e.refs <= 0 {
		panic(fmt.Errorf("BUG: release of released symbol %q", e.name))
	}
	e.refs--
	if e.refs == 0 {
		delete(e.pool.entries, e.name)
	}
}
