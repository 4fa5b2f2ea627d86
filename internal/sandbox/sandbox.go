package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutOfBounds is returned when a path does not resolve inside any allowed root.
var ErrOutOfBounds = errors.New("path is outside allowed browse roots")

// Validate resolves input to a canonical absolute path and checks that it equals,
// or descends from, one of roots. Symlinks are resolved before comparison so a
// link inside a root cannot point the caller outside of it.
func Validate(input string, roots []string) (string, error) {
	if strings.TrimSpace(input) == "" || len(roots) == 0 {
		return "", ErrOutOfBounds
	}

	resolved, err := canonical(input)
	if err != nil {
		return "", ErrOutOfBounds
	}

	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		absRoot, err := canonical(root)
		if err != nil {
			continue
		}
		if Contains(absRoot, resolved) {
			return resolved, nil
		}
	}
	return "", ErrOutOfBounds
}

// Contains reports whether candidate equals base or lies below it. Both paths
// must already be absolute and clean.
func Contains(base, candidate string) bool {
	if base == candidate {
		return true
	}
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// canonical returns the absolute, cleaned form of p with symlinks resolved on
// the longest prefix that exists. Missing trailing elements are re-attached so
// output paths that are about to be created can still be validated.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append(rest, filepath.Base(existing))
		existing = parent
	}
}
