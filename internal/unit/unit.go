// Package unit implements the unit scanner + cache (spec component D):
// for each source it learns the module identity and dependencies, either
// from the compiler driver's scanner or from a persisted JSON sidecar,
// and persists whichever it just computed.
package unit

// Unit describes one source's module identity and dependencies. Once
// produced it is never mutated; a build's Unit list is fixed for the
// invocation's lifetime.
type Unit struct {
	Input       string   `json:"input"`
	Exported    bool     `json:"exported"`
	ModuleName  string   `json:"moduleName"`
	IncludeDeps []string `json:"includeDeps"`
	ModuleDeps  []string `json:"moduleDeps"`
}
