package symbol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_Intern(t *testing.T) {
	p := NewPool()

	hello := p.Intern("_hello")
	require.Equal(t, "_hello", hello.String())
	require.Equal(t, 1, hello.RefCount())

	again := p.Intern("_hello")
	require.Same(t, hello, again)
	require.Equal(t, 2, hello.RefCount())
	require.Equal(t, 1, p.Len())

	other := p.Intern("__hello")
	require.NotSame(t, hello, other)
	require.Equal(t, 2, p.Len())
}

func TestEntry_RetainRelease(t *testing.T) {
	p := NewPool()

	e := p.Intern("sum")
	require.Same(t, e, e.Retain())
	require.Equal(t, 2, e.RefCount())

	e.Release()
	require.Equal(t, 1, e.RefCount())
	require.Equal(t, 1, p.Len())

	e.Release()
	require.Equal(t, 0, e.RefCount())
	require.Equal(t, 0, p.Len())

	// Interning after the last release yields a fresh entry.
	fresh := p.Intern("sum")
	require.NotSame(t, e, fresh)
	require.Equal(t, 1, fresh.RefCount())
}

func TestEntry_ReleasedPanics(t *testing.T) {
	e := NewPool().Intern("hello")
	e.Release()

	require.Panics(t, func() { e.Release() })
	require.Panics(t, func() { e.Retain() })
}
