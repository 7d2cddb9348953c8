// Package compiler defines the compiler-driver interface (spec
// component C): the abstract operation set every concrete frontend
// (native clang, or any alternative plugged in later) must provide.
package compiler

import "context"

// ScanResult is what scan_module reports about one source.
type ScanResult struct {
	Name     string   // "" if the unit declares no module
	Exported bool     // true for a module interface unit (or partition)
	Deps     []string // imported module names, in declared order
}

// Record is the {command, captured_output, status} tuple spec §4.3
// returns from every driver action.
type Record struct {
	Command string
	Output  string
	Status  int
}

// Driver is the abstract capability set of spec §4.3's table. Every
// action creates out's parent directory if absent, and a non-zero
// status is returned as a *errs.CompileError alongside the Record.
type Driver interface {
	// ScanModule discovers the module identity of a single source.
	ScanModule(ctx context.Context, src string, extraOpts []string) (ScanResult, error)

	// ScanIncludes returns the ordered list of headers src transitively
	// includes, for incrementality's includeDeps.
	ScanIncludes(ctx context.Context, src string, extraOpts []string) ([]string, error)

	// CompileBMI precompiles a module interface unit to its BMI.
	// moduleMap is name -> path for every BMI visible to this compile.
	CompileBMI(ctx context.Context, src, out string, moduleMap map[string]string, extraOpts []string) (Record, error)

	// CompileObject compiles src (a regular source, or a BMI when
	// producing the object for a module interface unit) to an object
	// file.
	CompileObject(ctx context.Context, src, out string, debug bool, moduleMap map[string]string, extraOpts []string) (Record, error)

	// Archive packs objs into a static library at out.
	Archive(ctx context.Context, objs []string, out string) (Record, error)

	// Link produces an executable (or a DSO-producing link) at out.
	Link(ctx context.Context, objs []string, out string, debug bool, extraOpts []string) (Record, error)

	// SharedLink produces a shared library at out, exporting all symbols
	// on platforms that require an explicit opt-in to do so.
	SharedLink(ctx context.Context, objs []string, out string, extraOpts []string) (Record, error)
}
