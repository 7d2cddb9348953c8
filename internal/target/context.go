// Package target implements the target model and builder façade (spec
// components E and F): typed BMI/Object/Archive/Executable/SharedLib/
// ExternalBMI/TargetProxy nodes, each able to report a deterministic
// output path and plan itself onto the shared task graph at most once.
package target

import (
	"path/filepath"

	"github.com/modbuild/modbuild/internal/compiler"
	"github.com/modbuild/modbuild/internal/exec"
	"github.com/modbuild/modbuild/internal/fingerprint"
	"github.com/modbuild/modbuild/internal/unit"
	"github.com/modbuild/modbuild/internal/vfs"
)

// PlanCtx is the single-threaded planning handle a Context carries: the
// scheduler graph (one per build invocation), the staleness oracle, and
// the worker-pool width. ChildPlan gives a Context a new PlanCtx with the
// same graph and a child VFS. Re-architected from the source's
// cyclic Target<->Context friend structs (design notes §9) into a
// read-only bundle every target's Plan receives.
type PlanCtx struct {
	Graph       *exec.Graph
	VFS         *vfs.VFS
	Parallelism int
}

// Context is the per-build-invocation bundle of output root, compiler
// driver, and accumulated options (spec §3). Distinct Contexts exist
// side by side when an external package's targets are re-evaluated
// under their own upstream directory layout (see TargetProxy) and when a
// build script is planned in a ChildPlan scope; all of them schedule on
// the same graph.
type Context struct {
	Name         string
	OutputRoot   string
	Debug        bool
	Compiler     compiler.Driver
	UnitCache    *unit.Cache
	Fingerprints *fingerprint.Cache
	CompileOpts  []string
	LinkOpts     []string

	*PlanCtx
}

// NewContext builds the root Context for a build invocation.
func NewContext(name, outputRoot string, debug bool, drv compiler.Driver, parallelism int) *Context {
	plan := &PlanCtx{
		Graph:       exec.NewGraph(),
		VFS:         vfs.New(),
		Parallelism: parallelism,
	}
	ctx := &Context{
		Name:       name,
		OutputRoot: outputRoot,
		Debug:      debug,
		Compiler:   drv,
		PlanCtx:    plan,
	}
	ctx.Fingerprints = fingerprint.New(ctx.CacheDir())
	return ctx
}

func (c *Context) dirFor(kind string) string {
	return filepath.Join(c.OutputRoot, c.Name, kind)
}

func (c *Context) PCMPath() string  { return c.dirFor("module") }
func (c *Context) ObjPath() string  { return c.dirFor("obj") }
func (c *Context) CacheDir() string { return c.dirFor("cache") }

// key identifies this Context for target memoization purposes: two
// Context values with the same Name+OutputRoot represent the same
// build-context identity even if they are distinct Go values (as
// happens every time a TargetProxy spawns a scoped child).
func (c *Context) key() string {
	return c.Name + "\x00" + c.OutputRoot
}

// withOverride returns a Context that reports its own name/output root
// (and, optionally, its own compile/link options) while continuing to
// schedule on the same shared graph and VFS — TargetProxy's "re-interpret
// under another context" (spec §4.7), minus the VFS scoping, which the
// caller wraps separately with ChildPlan/MergePlan.
func (c *Context) withOverride(name, outputRoot string, compileOpts, linkOpts []string) *Context {
	n := *c
	if name != "" {
		n.Name = name
	}
	if outputRoot != "" {
		n.OutputRoot = outputRoot
	}
	if compileOpts != nil {
		n.CompileOpts = compileOpts
	}
	if linkOpts != nil {
		n.LinkOpts = linkOpts
	}
	n.Fingerprints = fingerprint.New(n.CacheDir())
	return &n
}

// ChildPlan spawns a scoped child PlanCtx whose VFS inherits the
// parent's planned-output set by reference (vfs.Child); call MergePlan
// once the scoped build is done to fold its additions back, as design
// notes §9 prescribes for TargetProxy.
func (c *Context) ChildPlan() *Context {
	n := *c
	n.PlanCtx = &PlanCtx{
		Graph:       c.Graph,
		VFS:         c.VFS.Child(),
		Parallelism: c.Parallelism,
	}
	return &n
}

func (c *Context) MergePlan() {
	c.VFS.Merge()
}

// WithOptions returns a Context reporting compile/link flags, aggregated
// per-builder (see aggregateCompileFragments/aggregateLinkFragments)
// rather than kept as one global accumulator on the shared PlanCtx.
func (c *Context) WithOptions(compileOpts, linkOpts []string) *Context {
	n := *c
	n.CompileOpts = compileOpts
	n.LinkOpts = linkOpts
	return &n
}
