package stressor

import "strings"

// MungeName folds a stressor or class name to its canonical spelling:
// lower case with underscores mapped to hyphens, so "VM_addr" and "vm-addr"
// resolve to the same entry.
func MungeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}

// SameName compares two names under munging.
func SameName(a, b string) bool { return MungeName(a) == MungeName(b) }
