package unit

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// CollectFiles expands glob patterns (relative to baseDir, or taken
// as-is when absolute) into canonicalized absolute paths. The
// orchestrator calls it with its fixed source-extension patterns to find
// a package's sources before they reach the scanner.
func CollectFiles(baseDir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(baseDir)
	var files []string

	for _, pat := range patterns {
		if filepath.IsAbs(pat) {
			files = append(files, filepath.Clean(pat))
			continue
		}
		matches, err := doublestar.Glob(fsys, pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			abs, err := filepath.Abs(filepath.Join(baseDir, m))
			if err != nil {
				return nil, err
			}
			files = append(files, filepath.Clean(abs))
		}
	}
	return dedupe(files), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
