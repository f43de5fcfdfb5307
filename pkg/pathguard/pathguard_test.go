package pathguard

import (
	"errors"
	"path/filepath"
	"testing"

	apperrors "arcane/pkg/errors"
)

// TestConfineStaysInsideRoot verifies normal paths resolve under the root
func TestConfineStaysInsideRoot(t *testing.T) {
	root := t.TempDir()

	got, err := Confine(root, "subdir/file.txt")
	if err != nil {
		t.Fatalf("Confine failed: %v", err)
	}

	want := filepath.Join(root, "subdir", "file.txt")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

// TestConfineEmptyPathIsRoot verifies the empty request resolves to the root
// itself
func TestConfineEmptyPathIsRoot(t *testing.T) {
	root := t.TempDir()

	got, err := Confine(root, "")
	if err != nil {
		t.Fatalf("Confine failed: %v", err)
	}
	if got != root {
		t.Errorf("Expected %s, got %s", root, got)
	}
}

// TestConfineRejectsEscapes verifies traversal attempts are refused
func TestConfineRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	cases := []string{
		"../../etc/passwd",
		"..",
		"subdir/../../outside",
		"a/b/../../../c",
	}

	for _, requested := range cases {
		_, err := Confine(root, requested)
		if !errors.Is(err, apperrors.ErrForbidden) {
			t.Errorf("Confine(%q) = %v, expected ErrForbidden", requested, err)
		}
	}
}

// TestConfineCollapsesHarmlessDotDot verifies ".." that stays inside the
// root is allowed
func TestConfineCollapsesHarmlessDotDot(t *testing.T) {
	root := t.TempDir()

	got, err := Confine(root, "a/../b")
	if err != nil {
		t.Fatalf("Confine failed: %v", err)
	}

	want := filepath.Join(root, "b")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

// TestConfineStripsNullBytes verifies null bytes cannot smuggle a traversal
func TestConfineStripsNullBytes(t *testing.T) {
	root := t.TempDir()

	_, err := Confine(root, "..\x00/secret")
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}

// TestConfineSiblingPrefix verifies a sibling directory sharing the root's
// name prefix does not pass
func TestConfineSiblingPrefix(t *testing.T) {
	root := t.TempDir()

	_, err := Confine(root, "../"+filepath.Base(root)+"2/file")
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}
