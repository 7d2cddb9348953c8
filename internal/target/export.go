package target

import "sync"

// Export is what a library-producing Builder publishes for downstream
// builders to consume as additional module-resolution and link inputs
// (spec §4.7, component G). It doubles as ExportLookup so a Builder can
// hold a slice of upstream Exports without importing anything beyond
// this package.
type Export interface {
	ExportLookup
}

// localExport is used when the downstream builder shares the producing
// builder's own Context: nothing is wrapped, FindBMI/LibraryTarget
// return direct references.
type localExport struct {
	compileOpts []string
	linkOpts    []string
	modules     map[string]ModuleTarget
	library     Target
}

func newLocalExport(compileOpts, linkOpts []string, modules map[string]ModuleTarget, library Target) Export {
	return &localExport{compileOpts: compileOpts, linkOpts: linkOpts, modules: modules, library: library}
}

func (l *localExport) CompileOptionFragment() []string { return l.compileOpts }
func (l *localExport) LinkOptionFragment() []string    { return l.linkOpts }

func (l *localExport) FindBMI(name string) (ModuleTarget, bool) {
	m, ok := l.modules[name]
	return m, ok
}

func (l *localExport) LibraryTarget() (Target, bool) {
	if l.library == nil {
		return nil, false
	}
	return l.library, true
}

// externalExport wraps a localExport whose targets belong to a
// different output root: every ModuleTarget and the library target it
// hands out are wrapped in a Proxy/ModuleProxy so the downstream
// scheduler re-evaluates them under the upstream's own directory
// layout while still scheduling on the shared graph. Proxies are cached
// by identity of the inner target, so repeated lookups of the same
// module return the same wrapper.
type externalExport struct {
	inner Export

	overrideName    string
	overrideRoot    string
	overrideCompile []string
	overrideLink    []string

	mu          sync.Mutex
	moduleCache map[ModuleTarget]*ModuleProxy
	libCache    *Proxy
	libCached   bool
}

func newExternalExport(inner Export, name, outputRoot string) Export {
	return &externalExport{
		inner:        inner,
		overrideName: name,
		overrideRoot: outputRoot,
		moduleCache:  make(map[ModuleTarget]*ModuleProxy),
	}
}

func (e *externalExport) CompileOptionFragment() []string { return e.inner.CompileOptionFragment() }
func (e *externalExport) LinkOptionFragment() []string    { return e.inner.LinkOptionFragment() }

func (e *externalExport) FindBMI(name string) (ModuleTarget, bool) {
	mt, ok := e.inner.FindBMI(name)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.moduleCache[mt]; ok {
		return p, true
	}
	p := NewModuleProxy(mt, e.overrideName, e.overrideRoot, e.overrideCompile, e.overrideLink)
	e.moduleCache[mt] = p
	return p, true
}

func (e *externalExport) LibraryTarget() (Target, bool) {
	inner, ok := e.inner.LibraryTarget()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.libCached {
		return e.libCache, true
	}
	p := NewProxy(inner, e.overrideName, e.overrideRoot, e.overrideCompile, e.overrideLink)
	e.libCache = p
	e.libCached = true
	return p, true
}
