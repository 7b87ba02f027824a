// validation.go
package leafprefs

import (
	"fmt"
	"strings"
)

// nilSentinel is what an uninitialized caller sends as a key or container.
const nilSentinel = "nil"

// isSentinel reports whether s marks an uninitialized caller. Writes addressed to
// a sentinel key or container are dropped without error.
func isSentinel(s string) bool {
	return s == "" || s == nilSentinel
}

// ValidateContainer checks that a container name can double as a file name.
func ValidateContainer(container string) error {
	if isSentinel(container) {
		return fmt.Errorf("%w: %q", ErrInvalidContainer, container)
	}
	if container == "." || container == ".." || strings.ContainsAny(container, `/\`) || strings.ContainsRune(container, 0) {
		return fmt.Errorf("%w: %q is not a plain name", ErrInvalidContainer, container)
	}
	return nil
}

// ValidateKey checks a preference id.
func ValidateKey(key string) error {
	if isSentinel(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
