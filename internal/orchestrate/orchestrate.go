// Package orchestrate is the top-level driver the CLI front end calls:
// it resolves a project's package tree (internal/index), turns every
// node's recognized sources into Units (internal/unit), wires each into
// a target.Builder, runs any dev-only or custom-usage build scripts
// through the plugin ABI, and finally plans and runs the root project's
// own artifact — the same sequence the teacher's Builder.Build walks
// over its own resolved package map, generalized from a single static
// generator invocation to this core's graph-executor model.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/modbuild/modbuild/internal/compiler"
	"github.com/modbuild/modbuild/internal/config"
	"github.com/modbuild/modbuild/internal/errs"
	"github.com/modbuild/modbuild/internal/exec"
	"github.com/modbuild/modbuild/internal/index"
	"github.com/modbuild/modbuild/internal/plugin"
	"github.com/modbuild/modbuild/internal/target"
	"github.com/modbuild/modbuild/internal/unit"
)

// sourcePatterns is the convention-based source discovery glob: the
// project description (spec §6) has no sources/headers field of its
// own, so every recognized C/C++/module extension under the project
// directory (recursively) is treated as part of its unit set.
var sourcePatterns = []string{
	"**/*.cpp", "**/*.cc", "**/*.cxx", "**/*.c++",
	"**/*.ixx", "**/*.cppm", "**/*.mxx",
	"**/*.c",
}

// Options configures one orchestrated build invocation, one field per
// spec §6 CLI flag.
type Options struct {
	ProjectDir      string
	OutputRoot      string
	PackagesRoot    string
	Debug           bool
	NoBuild         bool
	CompileCommands bool
	CompilerName    string
	Parallelism     int
}

// Result is what Run reports back to the CLI layer.
type Result struct {
	OutputPath         string
	CompileCommandsLen int
}

// Run resolves opts.ProjectDir's package tree, builds every package in
// dependency order, and (unless NoBuild) plans and runs the root
// project's own artifact.
func Run(opts Options) (*Result, error) {
	tree, err := index.ResolveTree(opts.ProjectDir, opts.PackagesRoot)
	if err != nil {
		return nil, err
	}
	order := index.Flatten(tree)

	drv := newDriver(opts.CompilerName)
	root := target.NewContext(tree.Project.Name, opts.OutputRoot, opts.Debug, drv, opts.Parallelism)

	var db commandDB
	root.Compiler = newRecordingDriver(drv, &db, opts.CompileCommands)

	exports := make(map[*index.Node]target.Export)

	compilerName := opts.CompilerName
	if compilerName == "" {
		if nd, ok := drv.(*compiler.NativeDriver); ok {
			compilerName = nd.CXX
		}
	}

	for _, n := range order {
		x, err := buildNode(root, n, exports, compilerName)
		if err != nil {
			return nil, fmt.Errorf("building package %q: %w", n.Project.Name, err)
		}
		exports[n] = x
	}

	rootNode := tree
	rootExports := make([]target.ExportLookup, 0, len(rootNode.Deps))
	for _, d := range rootNode.Deps {
		rootExports = append(rootExports, exports[d])
	}

	b, err := builderFor(root, rootNode, rootExports)
	if err != nil {
		return nil, err
	}

	out, err := b.Output(root)
	if err != nil {
		return nil, err
	}

	if !opts.NoBuild {
		handle, err := b.Build(root)
		if err != nil {
			return nil, err
		}
		fl := exec.NewFutureList(root.Graph, takeFuture(handle))
		root.Graph.RunOn(root.Parallelism)
		if err := fl.Wait(); err != nil {
			return nil, err
		}
	}

	if opts.CompileCommands {
		if err := db.writeTo(filepath.Join(opts.OutputRoot, "compile_commands.json")); err != nil {
			return nil, err
		}
	}

	return &Result{OutputPath: out, CompileCommandsLen: len(db.entries)}, nil
}

func takeFuture(h *exec.Handle) *exec.Future {
	if h == nil {
		return nil
	}
	return h.TakeFuture()
}

func newDriver(name string) compiler.Driver {
	d := compiler.NewNativeDriver()
	if name != "" {
		d.CC, d.CXX = name, name
	}
	return d
}

// buildNode produces the Export a dependency package advertises,
// wiring its own upstream exports first (package graph order guarantees
// every entry in n.Deps is already in exports).
func buildNode(root *target.Context, n *index.Node, exports map[*index.Node]target.Export, compilerName string) (target.Export, error) {
	proj := n.Project

	upstream := make([]target.ExportLookup, 0, len(n.Deps))
	for _, d := range n.Deps {
		upstream = append(upstream, exports[d])
	}

	if len(proj.Usage.BuildScript) > 0 {
		if err := runBuildScript(root, n, proj.Usage.BuildScript, upstream, exports, compilerName); err != nil {
			return nil, err
		}
	} else if len(proj.Dev.BuildFile) > 0 {
		if err := runBuildScript(root, n, proj.Dev.BuildFile, upstream, exports, compilerName); err != nil {
			return nil, err
		}
	}

	if proj.Usage.PCMPath == "" && proj.Usage.CompileOption == "" && proj.Usage.LinkOption == "" && len(proj.Usage.Libs) == 0 {
		return newUsageExport(proj.Name, config.Usage{}), nil
	}

	env := config.TemplateEnv{ProjectDir: proj.Dir, Env: environMap()}
	usage, err := proj.Usage.EvalUsage(env)
	if err != nil {
		return nil, err
	}
	return newUsageExport(proj.Name, usage), nil
}

// runBuildScript compiles files (relative to the owning package's
// directory) into a shared library and invokes its ABI entry point,
// handing it the package's own upstream exports as lazy factories.
func runBuildScript(root *target.Context, n *index.Node, files config.StringOrList, upstream []target.ExportLookup, exports map[*index.Node]target.Export, compilerName string) error {
	abs := make([]string, len(files))
	for i, f := range files {
		abs[i] = filepath.Join(n.Dir, f)
	}

	if n.Project.Dev.Patch != "" && len(abs) > 0 {
		if err := config.ApplyDevPatch(abs[0], n.Project.Dev.Patch); err != nil {
			return err
		}
	}

	units, err := scanSources(root, n.Project.Name+".buildscript", abs)
	if err != nil {
		return err
	}

	scriptName := n.Project.Name + ".buildscript"
	b := target.NewBuilder(scriptName, units, upstream, nil, nil, target.ArtifactSharedLib, filepath.Join("buildscripts", scriptName+sharedLibSuffix()))

	scriptCtx := root.ChildPlan()
	handle, err := b.Build(scriptCtx)
	if err != nil {
		return err
	}
	scriptCtx.Graph.RunOn(scriptCtx.Parallelism)
	if err := exec.NewFutureList(scriptCtx.Graph, takeFuture(handle)).Wait(); err != nil {
		return err
	}
	scriptCtx.MergePlan()

	libPath, err := b.Output(scriptCtx)
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(n.Dir, "Qobs.toml")
	symbol := "build"
	if m, err := config.LoadPluginManifest(manifestPath); err == nil {
		symbol = m.Symbol
	}

	staged, err := plugin.StageForLoad(libPath)
	if err != nil {
		return err
	}

	script, err := plugin.Load(staged, symbol)
	if err != nil {
		return err
	}

	factories := make(map[string]plugin.ExportFactory, len(n.Deps))
	for _, d := range n.Deps {
		dep := d
		x, ok := exports[dep]
		factories[dep.Project.Name] = func() (target.Export, error) {
			if !ok {
				return nil, &errs.PackageNotBuilt{Name: dep.Project.Name}
			}
			return x, nil
		}
	}

	status, err := script.Invoke(&plugin.ProjectContext{
		Name:           n.Project.Name,
		PackageExports: factories,
		Compiler:       compilerName,
		Argv:           nil,
	})
	if err != nil {
		return err
	}
	if status != 0 {
		return &errs.ConfigError{Detail: fmt.Sprintf("build script for %q exited with status %d", n.Project.Name, status)}
	}
	return nil
}

func scanSources(root *target.Context, name string, files []string) ([]unit.Unit, error) {
	cache := unit.NewCache(root.OutputRoot, cacheDirFor(root, name), root.Compiler)
	fpPath, _, err := root.Fingerprints.Stamp("compileOptions", root.CompileOpts)
	if err != nil {
		return nil, err
	}

	units := make([]unit.Unit, 0, len(files))
	for _, f := range files {
		u, err := cache.Get(context.Background(), f, root.CompileOpts, fpPath)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

func builderFor(root *target.Context, n *index.Node, exports []target.ExportLookup) (*target.Builder, error) {
	files, err := unit.CollectFiles(n.Dir, sourcePatterns)
	if err != nil {
		return nil, err
	}

	cache := unit.NewCache(n.Dir, cacheDirFor(root, n.Project.Name), root.Compiler)

	units := make([]unit.Unit, 0, len(files))
	for _, f := range files {
		u, err := cache.Get(context.Background(), f, root.CompileOpts, "")
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}

	artifact := target.ArtifactExecutable
	if n.Project.Usage.Type == "custom" || len(n.Project.Usage.BuildScript) > 0 {
		artifact = target.ArtifactArchive
	}

	return target.NewBuilder(n.Project.Name, units, exports, nil, linkLibsFlags(n.Project.Usage.Libs), artifact, n.Project.Name), nil
}

// cacheDirFor namespaces the unit-scanner sidecar cache per package
// name, so two packages whose sources happen to share a relative path
// (e.g. both have "src/main.cpp") never collide under the one shared
// cache root.
func cacheDirFor(root *target.Context, name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return filepath.Join(root.CacheDir(), "packages", r.Replace(name))
}

func linkLibsFlags(libs []string) []string {
	flags := make([]string, 0, len(libs))
	for _, l := range libs {
		flags = append(flags, "-l"+l)
	}
	return flags
}

func sharedLibSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := range kv {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}

// usageExport adapts a package's Usage object into a target.Export: by
// convention a package's own module (if it exports one for consumption)
// shares its package name, since the project description carries no
// separate module-name field.
type usageExport struct {
	packageName string
	bmi         target.ModuleTarget
	compileOpts []string
	linkOpts    []string
}

func newUsageExport(packageName string, usage config.Usage) target.Export {
	x := &usageExport{packageName: packageName}
	if usage.CompileOption != "" {
		x.compileOpts = []string{usage.CompileOption}
	}
	if usage.LinkOption != "" {
		x.linkOpts = append(x.linkOpts, usage.LinkOption)
	}
	x.linkOpts = append(x.linkOpts, linkLibsFlags(usage.Libs)...)
	if usage.PCMPath != "" {
		x.bmi = target.NewExternalBMI(packageName, usage.PCMPath)
	}
	return x
}

func (u *usageExport) CompileOptionFragment() []string { return u.compileOpts }
func (u *usageExport) LinkOptionFragment() []string    { return u.linkOpts }

func (u *usageExport) FindBMI(name string) (target.ModuleTarget, bool) {
	if u.bmi == nil || name != u.packageName {
		return nil, false
	}
	return u.bmi, true
}

func (u *usageExport) LibraryTarget() (target.Target, bool) { return nil, false }

// commandDB accumulates compile_commands.json entries for actions this
// invocation actually scheduled (spec's supplemented compilation
// database feature), never for actions skipped as already up to date.
type commandDB struct {
	entries []compileCommand
}

type compileCommand struct {
	Directory string `json:"directory"`
	Command   string `json:"command"`
	File      string `json:"file"`
	Output    string `json:"output"`
}

func (db *commandDB) writeTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(db.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
