package manifest

import (
	"fmt"
	"strings"
)

// reservedNamespaces lists namespaces owned by the target runtime or
// the compiler's own generated output.
var reservedNamespaces = map[string]bool{
	"minecraft": true,
	"cobble":    true,
	"cb":        true,
}

// IsReservedNamespace reports whether name belongs to the runtime or
// the compiler and must not be used as a project namespace.
func IsReservedNamespace(name string) bool {
	return reservedNamespaces[name]
}

// ValidateNamespace checks that a project namespace is usable as a
// pack function prefix: lowercase letters, digits, "_", "-" and ".",
// non-empty, and not reserved.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace is empty")
	}
	if IsReservedNamespace(name) {
		return fmt.Errorf("namespace %q is reserved", name)
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.'
		if !ok {
			return fmt.Errorf("namespace %q contains invalid character %q", name, r)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("namespace %q must not start or end with a dot", name)
	}
	return nil
}
