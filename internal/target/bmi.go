package target

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modbuild/modbuild/internal/exec"
)

// BMI precompiles a module interface unit (or partition) to its binary
// module interface, per spec §4.5. Its dependency set is the source
// itself, its includeDeps, any extra fileDeps, and the output path of
// every module-target dep — never the dep's own upstream sources.
type BMI struct {
	Name        string
	Input       string
	IncludeDeps []string
	FileDeps    []string
	Deps        []ModuleTarget

	memo memo
}

func NewBMI(name, input string, includeDeps, fileDeps []string, deps []ModuleTarget) *BMI {
	return &BMI{Name: name, Input: input, IncludeDeps: includeDeps, FileDeps: fileDeps, Deps: deps, memo: newMemo()}
}

func (b *BMI) ModuleName() string         { return b.Name }
func (b *BMI) ModuleDeps() []ModuleTarget { return b.Deps }

// Output is the BMI's on-disk path: ctx.PCMPath()/<sanitized name>.pcm.
// Module-partition names (containing ':') and any path separators the
// frontend's module name might carry are sanitized to '-' so the path
// never escapes the module directory or collides across OSes.
func (b *BMI) Output(ctx *Context) string {
	return filepath.Join(ctx.PCMPath(), sanitizeModuleName(b.Name)+".pcm")
}

func sanitizeModuleName(name string) string {
	r := make([]rune, 0, len(name))
	for _, c := range name {
		switch c {
		case ':', '/', '\\':
			r = append(r, '-')
		default:
			r = append(r, c)
		}
	}
	return string(r)
}

func (b *BMI) Plan(ctx *Context) (*exec.Handle, error) {
	return b.memo.once(ctx, func() (*exec.Handle, error) {
		return b.plan(ctx)
	})
}

func (b *BMI) plan(ctx *Context) (*exec.Handle, error) {
	// computed before planning any dep, so a module cycle is reported as
	// CyclicModuleDependency instead of re-entering a dep's memo.
	moduleMap, err := computeModuleMap(ctx, b.Deps)
	if err != nil {
		return nil, err
	}

	var depHandles []*exec.Handle
	modulePaths := make([]string, 0, len(b.Deps))
	for _, d := range b.Deps {
		h, err := d.Plan(ctx)
		if err != nil {
			return nil, err
		}
		if h != nil {
			depHandles = append(depHandles, h)
		}
		modulePaths = append(modulePaths, d.Output(ctx))
	}

	out := b.Output(ctx)
	fpPath, fpChanged, err := ctx.Fingerprints.Stamp("compileOptions", ctx.CompileOpts)
	if err != nil {
		return nil, fmt.Errorf("stamp compile-options fingerprint: %w", err)
	}
	_ = fpChanged

	staleDeps := make([]string, 0, len(b.IncludeDeps)+len(b.FileDeps)+len(modulePaths)+2)
	staleDeps = append(staleDeps, b.Input)
	staleDeps = append(staleDeps, b.IncludeDeps...)
	staleDeps = append(staleDeps, b.FileDeps...)
	staleDeps = append(staleDeps, modulePaths...)
	staleDeps = append(staleDeps, fpPath)

	needsUpdate, err := ctx.VFS.NeedsUpdate(out, staleDeps)
	if err != nil {
		return nil, err
	}
	if !needsUpdate {
		return nil, nil
	}

	ctx.VFS.AddFile(out)

	task := func(taskCtx context.Context, g *exec.Graph) error {
		_, err := ctx.Compiler.CompileBMI(taskCtx, b.Input, out, moduleMap, ctx.CompileOpts)
		return err
	}

	handle := ctx.Graph.AddNode(task, depHandles...)
	return handle, nil
}
