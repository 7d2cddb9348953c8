// Package config parses the project description file (spec §6) and
// evaluates its templated usage strings, in the teacher's style of
// treating configuration as a thin JSON-decoded struct plus an
// expr-lang environment for the handful of fields that may reference
// the project's own directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modbuild/modbuild/internal/errs"
)

// PackageRef is a runtime dependency reference: either a bare string
// resolved against the packages root, or {"path": "..."} resolved
// relative to the project file.
type PackageRef struct {
	Name string // set when the JSON value was a plain string
	Path string // set when the JSON value was {"path": "..."}
}

func (r *PackageRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Name = s
		return nil
	}

	var obj struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("packageRef must be a string or {path: string}: %w", err)
	}
	if obj.Path == "" {
		return fmt.Errorf("packageRef object must set \"path\"")
	}
	r.Path = obj.Path
	return nil
}

// Dev is the dev-only section: the source(s) of a loadable build script
// plus packages/compiler/debug settings for it. Compiler, Debug and
// Packages are parsed but not read by the orchestrator: the script is
// compiled with the root context's compiler and debug setting, and
// Packages are neither resolved nor added to any build.
type Dev struct {
	BuildFile StringOrList `json:"buildFile"`
	Compiler  string       `json:"compiler"`
	Debug     bool         `json:"debug"`
	Packages  []PackageRef `json:"packages"`

	// Patch, if set, is a unified-diff-style patch applied to the first
	// source of the build script that gets compiled (usage's build script
	// when it has one, otherwise BuildFile) — the dev affordance for
	// iterating on a loadable build script without hand-editing the
	// checked-in copy every time.
	Patch string `json:"patch"`
}

// Usage describes how a package advertises its build artifact to
// downstream consumers: either a custom build script (path/array of
// paths) or an inline, possibly templated, flag/library description.
type Usage struct {
	BuildScript StringOrList `json:"-"`

	PCMPath       string   `json:"pcmPath"`
	CompileOption string   `json:"compileOption"`
	LinkOption    string   `json:"linkOption"`
	Libs          []string `json:"libs"`
	Type          string   `json:"type"`
}

func (u *Usage) UnmarshalJSON(data []byte) error {
	var sol StringOrList
	if err := json.Unmarshal(data, &sol); err == nil && len(sol) > 0 {
		u.BuildScript = sol
		return nil
	}

	type usageAlias Usage
	var alias usageAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("usage must be a path, array of paths, or an object: %w", err)
	}
	*u = Usage(alias)
	return nil
}

// StringOrList accepts either a bare JSON string or an array of
// strings, unmarshaling both into a []string.
type StringOrList []string

func (s *StringOrList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringOrList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringOrList(many)
	return nil
}

// Project is the parsed project description file (spec §6).
type Project struct {
	Name     string       `json:"name"`
	Packages []PackageRef `json:"packages"`
	Dev      Dev          `json:"dev"`
	Usage    Usage        `json:"usage"`

	// Dir is the directory the project file was loaded from, not itself
	// a JSON field; every templated string resolves relative to it.
	Dir string `json:"-"`
}

// Load reads and parses the project description at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Detail: "reading project file " + path, Err: err}
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &errs.ConfigError{Detail: "parsing project file " + path, Err: err}
	}
	if p.Name == "" {
		return nil, &errs.ConfigError{Detail: path + ": \"name\" is required"}
	}

	p.Dir = filepath.Dir(path)
	return &p, nil
}
