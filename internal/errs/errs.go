// Package errs holds the error taxonomy shared by every component of the
// orchestrator, so callers can type-switch on a stable set of sentinels
// regardless of which layer raised them.
package errs

import (
	"fmt"
	"strings"
)

// ScanError wraps a failure of the module/include scanner.
type ScanError struct {
	Source string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Source, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ModuleNotFound means a unit's module reference could not be resolved
// against local units or any export in scope.
type ModuleNotFound struct {
	Source      string
	MissingName string
}

func (e *ModuleNotFound) Error() string {
	return fmt.Sprintf("%s: module %q not found", e.Source, e.MissingName)
}

// CyclicModuleDependency means the induced BMI sub-DAG has a cycle.
type CyclicModuleDependency struct {
	Chain []string
}

func (e *CyclicModuleDependency) Error() string {
	return fmt.Sprintf("cyclic module dependency: %s", strings.Join(e.Chain, " -> "))
}

// CyclicPackageDependency means the package graph has a cycle.
type CyclicPackageDependency struct {
	Chain []string
}

func (e *CyclicPackageDependency) Error() string {
	return fmt.Sprintf("cyclic package dependency: %s", strings.Join(e.Chain, " -> "))
}

// CompileError means a compiler-driver subprocess returned non-zero.
type CompileError struct {
	Command string
	Output  string
	Status  int
}

func (e *CompileError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command failed (status %d): %s", e.Status, e.Command)
	}
	return fmt.Sprintf("command failed (status %d): %s\n%s", e.Status, e.Command, e.Output)
}

// FileNotFound means a dependency file was required but is absent, both
// on disk and in the VFS's planned-output set.
type FileNotFound struct {
	Path string
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

// PackageNotBuilt means a package advertised no buildable usage.
type PackageNotBuilt struct {
	Name string
}

func (e *PackageNotBuilt) Error() string {
	return fmt.Sprintf("package %q has no buildable usage", e.Name)
}

// ConfigError means the project description was malformed.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("config error: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Terminated means the task's graph was torn down before the task could
// run to completion, because a sibling task failed first.
type Terminated struct{}

func (e *Terminated) Error() string { return "terminated: graph was torn down after a sibling task failed" }
