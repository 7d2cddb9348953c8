package target

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/modbuild/modbuild/internal/exec"
)

// linkKind selects which Driver action a Linked target's node invokes.
type linkKind int

const (
	kindArchive linkKind = iota
	kindExecutable
	kindSharedLib
)

// Linked is the common shape of Archive, Executable, and SharedLib: it
// owns a list of Targets (ordinarily Objects) and links or archives
// their outputs together, plus any extra fileDeps (e.g. a response
// file, a version script).
type Linked struct {
	kind       linkKind
	outputPath string
	Objects    []Target
	FileDeps   []string

	memo memo
}

func NewArchive(outputPath string, objects []Target, fileDeps []string) *Linked {
	return &Linked{kind: kindArchive, outputPath: outputPath, Objects: objects, FileDeps: fileDeps, memo: newMemo()}
}

func NewExecutable(outputPath string, objects []Target, fileDeps []string) *Linked {
	return &Linked{kind: kindExecutable, outputPath: outputPath, Objects: objects, FileDeps: fileDeps, memo: newMemo()}
}

func NewSharedLib(outputPath string, objects []Target, fileDeps []string) *Linked {
	return &Linked{kind: kindSharedLib, outputPath: outputPath, Objects: objects, FileDeps: fileDeps, memo: newMemo()}
}

func (l *Linked) Output(ctx *Context) string {
	if filepath.IsAbs(l.outputPath) {
		return l.outputPath
	}
	return filepath.Join(ctx.OutputRoot, ctx.Name, l.outputPath)
}

func (l *Linked) Plan(ctx *Context) (*exec.Handle, error) {
	return l.memo.once(ctx, func() (*exec.Handle, error) {
		return l.plan(ctx)
	})
}

func (l *Linked) plan(ctx *Context) (*exec.Handle, error) {
	var depHandles []*exec.Handle
	objPaths := make([]string, 0, len(l.Objects))
	for _, o := range l.Objects {
		h, err := o.Plan(ctx)
		if err != nil {
			return nil, err
		}
		if h != nil {
			depHandles = append(depHandles, h)
		}
		objPaths = append(objPaths, o.Output(ctx))
	}

	out := l.Output(ctx)
	fpPath, _, err := ctx.Fingerprints.Stamp("linkOptions", ctx.LinkOpts)
	if err != nil {
		return nil, fmt.Errorf("stamp link-options fingerprint: %w", err)
	}

	staleDeps := make([]string, 0, len(objPaths)+len(l.FileDeps)+1)
	staleDeps = append(staleDeps, objPaths...)
	staleDeps = append(staleDeps, l.FileDeps...)
	staleDeps = append(staleDeps, fpPath)

	needsUpdate, err := ctx.VFS.NeedsUpdate(out, staleDeps)
	if err != nil {
		return nil, err
	}
	if !needsUpdate {
		return nil, nil
	}

	ctx.VFS.AddFile(out)

	kind := l.kind
	task := func(taskCtx context.Context, g *exec.Graph) error {
		var err error
		switch kind {
		case kindArchive:
			_, err = ctx.Compiler.Archive(taskCtx, objPaths, out)
		case kindExecutable:
			_, err = ctx.Compiler.Link(taskCtx, objPaths, out, ctx.Debug, ctx.LinkOpts)
		case kindSharedLib:
			_, err = ctx.Compiler.SharedLink(taskCtx, objPaths, out, ctx.LinkOpts)
		}
		return err
	}

	handle := ctx.Graph.AddNode(task, depHandles...)
	return handle, nil
}
