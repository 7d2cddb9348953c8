package target

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modbuild/modbuild/internal/exec"
)

// ObjectKind distinguishes a classical translation unit from the
// implementation object of a module interface unit, which compiles from
// its own BMI rather than directly from source (spec §4.6).
type ObjectKind int

const (
	Classical ObjectKind = iota
	ModuleInterfaceObject
)

// Object compiles one source (or one BMI) to a single .o. When Kind is
// ModuleInterfaceObject, the invariant "dep set equals {BMI}" holds:
// the object is planned after its own BMI only, its staleness set is the
// BMI's output plus the compile-options fingerprint, and its moduleMap
// comes from the BMI's module deps; Deps, IncludeDeps and FileDeps are
// not consulted.
type Object struct {
	Input       string
	IncludeDeps []string
	FileDeps    []string
	Deps        []ModuleTarget
	Kind        ObjectKind
	BMI         ModuleTarget // set iff Kind == ModuleInterfaceObject

	OutputRoot string // not read by Output: every .o is placed directly under ctx.ObjPath()

	memo memo
}

func NewClassicalObject(input string, includeDeps, fileDeps []string, deps []ModuleTarget) *Object {
	return &Object{Input: input, IncludeDeps: includeDeps, FileDeps: fileDeps, Deps: deps, Kind: Classical, memo: newMemo()}
}

func NewModuleInterfaceObject(bmi ModuleTarget, includeDeps, fileDeps []string, deps []ModuleTarget) *Object {
	return &Object{Input: bmi.ModuleName(), IncludeDeps: includeDeps, FileDeps: fileDeps, Deps: deps, Kind: ModuleInterfaceObject, BMI: bmi, memo: newMemo()}
}

func (o *Object) Output(ctx *Context) string {
	base := o.Input
	if o.Kind == ModuleInterfaceObject {
		base = o.BMI.ModuleName()
	}
	stem := strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	return filepath.Join(ctx.ObjPath(), sanitizeModuleName(stem)+".o")
}

func (o *Object) Plan(ctx *Context) (*exec.Handle, error) {
	return o.memo.once(ctx, func() (*exec.Handle, error) {
		return o.plan(ctx)
	})
}

func (o *Object) plan(ctx *Context) (*exec.Handle, error) {
	var depHandles []*exec.Handle
	var compileInput string
	var moduleMap map[string]string

	if o.Kind == ModuleInterfaceObject {
		h, err := o.BMI.Plan(ctx)
		if err != nil {
			return nil, err
		}
		if h != nil {
			depHandles = append(depHandles, h)
		}
		compileInput = o.BMI.Output(ctx)

		var mmErr error
		moduleMap, mmErr = computeModuleMap(ctx, o.BMI.ModuleDeps())
		if mmErr != nil {
			return nil, mmErr
		}
	} else {
		compileInput = o.Input
		for _, d := range o.Deps {
			h, err := d.Plan(ctx)
			if err != nil {
				return nil, err
			}
			if h != nil {
				depHandles = append(depHandles, h)
			}
		}
		var err error
		moduleMap, err = computeModuleMap(ctx, o.Deps)
		if err != nil {
			return nil, err
		}
	}

	out := o.Output(ctx)
	fpPath, _, err := ctx.Fingerprints.Stamp("compileOptions", ctx.CompileOpts)
	if err != nil {
		return nil, fmt.Errorf("stamp compile-options fingerprint: %w", err)
	}

	var staleDeps []string
	if o.Kind == ModuleInterfaceObject {
		staleDeps = []string{compileInput, fpPath}
	} else {
		staleDeps = append(staleDeps, o.Input)
		staleDeps = append(staleDeps, o.IncludeDeps...)
		staleDeps = append(staleDeps, o.FileDeps...)
		for _, d := range o.Deps {
			staleDeps = append(staleDeps, d.Output(ctx))
		}
		staleDeps = append(staleDeps, fpPath)
	}

	needsUpdate, err := ctx.VFS.NeedsUpdate(out, staleDeps)
	if err != nil {
		return nil, err
	}
	if !needsUpdate {
		return nil, nil
	}

	ctx.VFS.AddFile(out)

	task := func(taskCtx context.Context, g *exec.Graph) error {
		_, err := ctx.Compiler.CompileObject(taskCtx, compileInput, out, ctx.Debug, moduleMap, ctx.CompileOpts)
		return err
	}

	handle := ctx.Graph.AddNode(task, depHandles...)
	return handle, nil
}
