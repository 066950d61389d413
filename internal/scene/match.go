package scene

import (
	"path/filepath"
	"runtime"
	"strings"
)

// PathMatcher decides whether two registration paths name the same script
// and how a new path is written into a document.
type PathMatcher interface {
	Canonical(path string) string
	Equal(a, b string) bool
}

// RawPaths compares paths as plain strings.
type RawPaths struct{}

func (RawPaths) Canonical(path string) string { return path }

func (RawPaths) Equal(a, b string) bool { return a == b }

// NormalizedPaths compares absolute, cleaned paths with OS separators.
// FoldCase additionally ignores letter case, for case-insensitive filesystems.
type NormalizedPaths struct {
	FoldCase bool
}

// DefaultNormalizedPaths folds case on Windows and macOS.
func DefaultNormalizedPaths() NormalizedPaths {
	return NormalizedPaths{FoldCase: runtime.GOOS == "windows" || runtime.GOOS == "darwin"}
}

func (m NormalizedPaths) Canonical(path string) string {
	p := filepath.FromSlash(path)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}

func (m NormalizedPaths) Equal(a, b string) bool {
	ca, cb := m.Canonical(a), m.Canonical(b)
	if m.FoldCase {
		return strings.EqualFold(ca, cb)
	}
	return ca == cb
}

// Matcher returns the matcher for the normalizePaths setting.
func Matcher(normalize bool) PathMatcher {
	if normalize {
		return DefaultNormalizedPaths()
	}
	return RawPaths{}
}
