// Package maintester runs a main function with its process streams captured.
package maintester

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMain runs main with os.Args set to args and returns what it wrote to
// os.Stdout and os.Stderr, with Windows newlines normalized.
func TestMain(t *testing.T, main func(), args ...string) (stdout, stderr string) {
	t.Helper()
	dir := t.TempDir()
	stdoutF := create(t, dir, "stdout.txt")
	stderrF := create(t, dir, "stderr.txt")

	oldArgs, oldStdout, oldStderr := os.Args, os.Stdout, os.Stderr
	restore := func() {
		os.Args, os.Stdout, os.Stderr = oldArgs, oldStdout, oldStderr
		_ = stdoutF.Close()
		_ = stderrF.Close()
	}
	// Restore even if main panics, so the failure is visible.
	defer restore()

	os.Args, os.Stdout, os.Stderr = args, stdoutF, stderrF
	main()
	restore()

	return read(t, stdoutF.Name()), read(t, stderrF.Name())
}

func create(t *testing.T, dir, name string) *os.File {
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	return f
}

func read(t *testing.T, path string) string {
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.ReplaceAll(string(b), "\r\n", "\n")
}
