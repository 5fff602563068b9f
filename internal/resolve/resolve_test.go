package resolve

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	require.Same(t, Hello, Default("hello"))

	for _, name := range []string{"", "Hello", "HELLO", "_hello", "hello ", "hell", "helloo", "sum", "ZN4core9panicking5panic"} {
		require.Nil(t, Default(name), name)
	}
}

func TestDefault_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		require.Same(t, Default("hello"), Default("hello"))
	}
}

func TestHello(t *testing.T) {
	require.False(t, Hello.Generic)
	require.Empty(t, Hello.Params)
	require.Empty(t, Hello.Results)

	var stdout, stderr bytes.Buffer
	ctx := WithStdio(context.Background(), &stdout, &stderr)
	Hello.Fn.Call(ctx, nil, nil)

	require.Equal(t, "Oh hello, that's called from JITed code!\n", stdout.String())
	require.Zero(t, stderr.Len())
}

func TestRustPanic(t *testing.T) {
	tests := []struct {
		canonical string
		expected  bool
	}{
		{canonical: "ZN4core9panicking5panic17h0123456789abcdefE", expected: true},
		{canonical: "ZN4core9panicking9panic_fmt17hfedcba9876543210E", expected: true},
		{canonical: "ZN4core3fmt5write17h0123456789abcdefE"},
		{canonical: "hello"},
		{canonical: ""},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.canonical, func(t *testing.T) {
			f := RustPanic(tt.canonical)
			if !tt.expected {
				require.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			require.True(t, f.Generic)
			require.Equal(t, tt.canonical, f.Name)
		})
	}
}

func TestChain(t *testing.T) {
	r := Chain(Default, RustPanic)
	require.Same(t, Hello, r("hello"))
	require.NotNil(t, r("ZN4core9panicking5panic"))
	require.Nil(t, r("unknown"))

	first := &HostFunc{Name: "first"}
	shadow := Chain(func(canonical string) *HostFunc {
		if canonical == "hello" {
			return first
		}
		return nil
	}, Default)
	require.Same(t, first, shadow("hello"))

	require.Nil(t, Chain()("hello"))
}

func TestStdioFrom_Defaults(t *testing.T) {
	s := stdioFrom(context.Background())
	require.NotNil(t, s.Stdout)
	require.NotNil(t, s.Stderr)
}
