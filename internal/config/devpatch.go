package config

import (
	"os"

	"github.com/modbuild/modbuild/internal/errs"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// ApplyDevPatch rewrites a dev build-script source in place by applying
// a unified-diff-style patch text, the dev affordance that lets a
// developer iterate on a loadable build script without re-running
// whatever generated it from a template. Used only by the build-script
// compile step; never touches a package's own exported sources.
func ApplyDevPatch(srcPath, patchText string) error {
	original, err := os.ReadFile(srcPath)
	if err != nil {
		return &errs.ConfigError{Detail: "reading dev build script " + srcPath, Err: err}
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return &errs.ConfigError{Detail: "parsing dev patch for " + srcPath, Err: err}
	}

	patched, results := dmp.PatchApply(patches, string(original))
	for _, applied := range results {
		if !applied {
			return &errs.ConfigError{Detail: "dev patch hunk failed to apply against " + srcPath}
		}
	}

	return os.WriteFile(srcPath, []byte(patched), 0o644)
}
