package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDropLeadingUnderscores(t *testing.T) {
	tests := []struct {
		name, input, expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain", input: "hello", expected: "hello"},
		{name: "one", input: "_hello", expected: "hello"},
		{name: "two", input: "__hello", expected: "hello"},
		{name: "inner kept", input: "_hello_world_", expected: "hello_world_"},
		{name: "rust mangled", input: "__ZN4core9panicking5panic17h", expected: "ZN4core9panicking5panic17h"},
		{name: "only underscore", input: "_", expected: ""},
		{name: "only underscores", input: "_____", expected: ""},
	}

	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, DropLeadingUnderscores(tt.input))
		})
	}
}

func TestDropLeadingUnderscores_Properties(t *testing.T) {
	inputs := []string{"", "a", "_a", "a_", "__a__b", "hello", "Hello", "_hello", "x_y", "\x00_", "_\x00"}
	for n := 0; n < 16; n++ {
		inputs = append(inputs, strings.Repeat("_", n), strings.Repeat("_", n)+"sum")
	}

	for _, s := range inputs {
		stripped := DropLeadingUnderscores(s)

		// idempotent
		require.Equal(t, stripped, DropLeadingUnderscores(stripped), s)

		if strings.Trim(s, "_") == "" {
			require.Equal(t, "", stripped, s)
		}
		if !strings.HasPrefix(s, "_") {
			require.Equal(t, s, stripped, s)
		}
		require.False(t, strings.HasPrefix(stripped, "_"), s)
	}
}
