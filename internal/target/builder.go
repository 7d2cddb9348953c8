package target

import (
	"fmt"
	"sync"

	"github.com/modbuild/modbuild/internal/errs"
	"github.com/modbuild/modbuild/internal/exec"
	"github.com/modbuild/modbuild/internal/unit"
)

// Artifact selects what kind of root target a Builder produces.
type Artifact int

const (
	ArtifactExecutable Artifact = iota
	ArtifactArchive
	ArtifactSharedLib
)

// ExportLookup is the minimal view a Builder needs of an upstream
// Export — findBmi and the export's own flag fragments.
type ExportLookup interface {
	CompileOptionFragment() []string
	LinkOptionFragment() []string
	FindBMI(name string) (ModuleTarget, bool)
	LibraryTarget() (Target, bool)
}

// Builder turns a source set + export set into a root target, per spec
// §4.6: every Unit becomes an Object (and, if exported, a BMI); module
// names resolve first against the local index, then against each
// export in construction order; the whole thing is wired together once
// and memoized.
type Builder struct {
	Name        string
	Units       []unit.Unit
	Exports     []ExportLookup
	CompileOpts []string
	LinkOpts    []string
	Artifact    Artifact
	OutputName  string // relative path under ctx.OutputRoot/ctx.Name, e.g. "bin/app"
	Shared      bool

	buildOnce  sync.Once
	root       Target
	localIndex map[string]ModuleTarget
	buildErr   error

	exportMu      sync.Mutex
	exportByKey   map[string]Export
	externalCache map[string]Export
}

func NewBuilder(name string, units []unit.Unit, exports []ExportLookup, compileOpts, linkOpts []string, artifact Artifact, outputName string) *Builder {
	return &Builder{
		Name:        name,
		Units:       units,
		Exports:     exports,
		CompileOpts: compileOpts,
		LinkOpts:    linkOpts,
		Artifact:    artifact,
		OutputName:  outputName,
	}
}

// wire builds the full Object/BMI graph from Units and Exports; it is
// computed once regardless of how many times Build/Output/GetExport are
// called.
func (b *Builder) wire() (Target, map[string]ModuleTarget, error) {
	localIndex := make(map[string]ModuleTarget)
	bmis := make(map[string]*BMI)

	for _, u := range b.Units {
		if !u.Exported || u.ModuleName == "" {
			continue
		}
		if _, dup := localIndex[u.ModuleName]; dup {
			return nil, nil, &errs.ConfigError{Detail: fmt.Sprintf("module %q exported by more than one unit in %s", u.ModuleName, b.Name)}
		}
		bmi := NewBMI(u.ModuleName, u.Input, u.IncludeDeps, nil, nil)
		bmis[u.ModuleName] = bmi
		localIndex[u.ModuleName] = bmi
	}

	resolve := func(name string) (ModuleTarget, error) {
		if mt, ok := localIndex[name]; ok {
			return mt, nil
		}
		for _, x := range b.Exports {
			if mt, ok := x.FindBMI(name); ok {
				return mt, nil
			}
		}
		return nil, &errs.ModuleNotFound{MissingName: name}
	}

	// wire each exported unit's BMI module-target deps now that resolve
	// can see the whole local index.
	for _, u := range b.Units {
		if !u.Exported || u.ModuleName == "" {
			continue
		}
		bmi := bmis[u.ModuleName]
		deps := make([]ModuleTarget, 0, len(u.ModuleDeps))
		for _, dep := range u.ModuleDeps {
			mt, err := resolve(dep)
			if err != nil {
				if mnf, ok := err.(*errs.ModuleNotFound); ok {
					mnf.Source = u.Input
				}
				return nil, nil, err
			}
			deps = append(deps, mt)
		}
		bmi.Deps = deps
	}

	objects := make([]Target, 0, len(b.Units))
	for _, u := range b.Units {
		deps := make([]ModuleTarget, 0, len(u.ModuleDeps))
		for _, dep := range u.ModuleDeps {
			mt, err := resolve(dep)
			if err != nil {
				if mnf, ok := err.(*errs.ModuleNotFound); ok {
					mnf.Source = u.Input
				}
				return nil, nil, err
			}
			deps = append(deps, mt)
		}

		if u.Exported && u.ModuleName != "" {
			bmi := bmis[u.ModuleName]
			objects = append(objects, NewModuleInterfaceObject(bmi, u.IncludeDeps, nil, deps))
		} else {
			objects = append(objects, NewClassicalObject(u.Input, u.IncludeDeps, nil, deps))
		}
	}

	var root Target
	switch b.Artifact {
	case ArtifactArchive:
		root = NewArchive(b.OutputName, objects, nil)
	case ArtifactSharedLib:
		root = NewSharedLib(b.OutputName, objects, nil)
	default:
		root = NewExecutable(b.OutputName, objects, nil)
	}

	return root, localIndex, nil
}

func (b *Builder) ensureWired() error {
	b.buildOnce.Do(func() {
		b.root, b.localIndex, b.buildErr = b.wire()
	})
	return b.buildErr
}

// effective folds this builder's own compile/link flags with its
// exports' fragments (spec §3's "CompilerOptions accumulates flags
// contributed by the builder itself and by every Export depended on")
// and returns a Context reporting that aggregate, rather than whatever
// ctx itself carried.
func (b *Builder) effective(ctx *Context) *Context {
	return ctx.WithOptions(
		aggregateCompileFragments(b.CompileOpts, b.Exports),
		aggregateLinkFragments(b.LinkOpts, b.Exports),
	)
}

// Build schedules the root target's full dependency subgraph onto ctx's
// shared graph, returning its handle (nil if everything was already up
// to date).
func (b *Builder) Build(ctx *Context) (*exec.Handle, error) {
	if err := b.ensureWired(); err != nil {
		return nil, err
	}
	return b.root.Plan(b.effective(ctx))
}

// Output reports the root target's deterministic artifact path.
func (b *Builder) Output(ctx *Context) (string, error) {
	if err := b.ensureWired(); err != nil {
		return "", err
	}
	return b.root.Output(b.effective(ctx)), nil
}

// GetExport returns the Export this library builder advertises for
// ctx's identity, building it on first call and returning the same
// value for every subsequent call with the same ctx (spec §4.6's
// idempotence requirement).
func (b *Builder) GetExport(ctx *Context) (Export, error) {
	if err := b.ensureWired(); err != nil {
		return nil, err
	}

	key := ctx.key()
	b.exportMu.Lock()
	defer b.exportMu.Unlock()
	if b.exportByKey == nil {
		b.exportByKey = make(map[string]Export)
	}
	if x, ok := b.exportByKey[key]; ok {
		return x, nil
	}

	var library Target
	if b.Artifact != ArtifactExecutable {
		library = b.root
	}
	x := newLocalExport(
		aggregateCompileFragments(b.CompileOpts, b.Exports),
		aggregateLinkFragments(b.LinkOpts, b.Exports),
		b.localIndex,
		library,
	)
	b.exportByKey[key] = x
	return x, nil
}

// CreateExternalExport produces an Export wired to a distinct Context
// rooted at outputRoot: every module and library target it hands out is
// reached via a Proxy that re-plans under that root instead of the
// caller's own. Memoized per outputRoot so repeated calls for the same
// upstream directory return the same wrapper set.
func (b *Builder) CreateExternalExport(outputRoot string) (Export, error) {
	ctx := &Context{Name: b.Name, OutputRoot: outputRoot}
	local, err := b.GetExport(ctx)
	if err != nil {
		return nil, err
	}

	b.exportMu.Lock()
	defer b.exportMu.Unlock()
	if b.externalCache == nil {
		b.externalCache = make(map[string]Export)
	}
	if x, ok := b.externalCache[outputRoot]; ok {
		return x, nil
	}
	x := newExternalExport(local, b.Name, outputRoot)
	b.externalCache[outputRoot] = x
	return x, nil
}
