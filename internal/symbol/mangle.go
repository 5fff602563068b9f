package symbol

import "strings"

// DropLeadingUnderscores returns the canonical form of a linker-mangled name
// by removing every leading '_'. A name made only of underscores becomes "".
func DropLeadingUnderscores(name string) string {
	return strings.TrimLeft(name, "_")
}
