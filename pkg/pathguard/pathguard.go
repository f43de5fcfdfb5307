// Package pathguard confines requested filesystem paths to a configured
// root directory.
package pathguard

import (
	"fmt"
	"path/filepath"
	"strings"

	apperrors "arcane/pkg/errors"
)

// Confine resolves a requested relative path against the root and returns
// the absolute path, or ErrForbidden when the resolved path escapes the
// root. The comparison canonicalizes both sides with a trailing separator
// so a sibling directory sharing the root's name prefix cannot pass.
func Confine(root, requested string) (string, error) {
	// strip null bytes before any path math
	requested = strings.ReplaceAll(requested, "\x00", "")

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}

	// Join cleans the result, collapsing any ".." components
	full := filepath.Join(absRoot, requested)

	if full == absRoot {
		return full, nil
	}

	prefix := absRoot
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	if !strings.HasPrefix(full, prefix) {
		return "", apperrors.ErrForbidden
	}

	return full, nil
}
