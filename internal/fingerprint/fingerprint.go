// Package fingerprint implements the options fingerprint cache (spec
// component H): compile/link option strings are persisted to a small
// text file whose mtime feeds staleness checks everywhere else in the
// orchestrator.
package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
)

// sep joins flags for writing and comparing. A plain space would let a flag
// value containing a space collide with two distinct flags, so a
// control character that can never appear in a shell-tokenized argument
// is used instead (grounded on the option-vector handling in
// make-dot-cpp's Builder.cpp, which never shell-joins its options).
const sep = "\x1f"

// Cache persists fingerprint files under dir (normally
// <context output root>/cache).
type Cache struct {
	dir string
}

func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the on-disk path of the fingerprint file for the given
// kind ("compileOptions" or "linkOptions").
func (c *Cache) Path(kind string) string {
	return filepath.Join(c.dir, kind+".txt")
}

// Canonicalize joins flags the way this cache writes them, so
// callers that only need to compare (without writing) can reuse it.
func Canonicalize(flags []string) string {
	return strings.Join(flags, sep)
}

// Stamp writes the canonical form of flags to kind's fingerprint file if
// it differs from what's already there (or the file doesn't exist yet),
// which is what actually advances the file's mtime. Returns the file
// path and whether a write happened.
func (c *Cache) Stamp(kind string, flags []string) (path string, changed bool, err error) {
	path = c.Path(kind)
	canonical := Canonicalize(flags)

	existing, readErr := os.ReadFile(path)
	if readErr == nil && string(existing) == canonical {
		return path, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, false, err
	}
	if err := os.WriteFile(path, []byte(canonical), 0o644); err != nil {
		return path, false, err
	}
	return path, true, nil
}
