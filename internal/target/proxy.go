package target

import "github.com/modbuild/modbuild/internal/exec"

// Proxy re-interprets an inner target under an overriding Context —
// a different name/output-root (so an upstream package's own targets
// build into their own directory layout rather than the downstream
// consumer's) and, optionally, different compile/link options. Every
// call spawns a scoped child PlanCtx that inherits the caller's VFS by
// reference and merges its planned-output additions back on return, so
// staleness decisions made while planning the proxied target still see
// (and contribute to) the surrounding build's VFS.
//
// Proxy itself is memoized like any other target: the first Plan call
// for a given calling Context wins, matching the "build() invoked once
// regardless of how many dependents reference it" invariant even though
// the override Context is reconstructed fresh on every call.
type Proxy struct {
	inner           Target
	overrideName    string
	overrideRoot    string
	overrideCompile []string
	overrideLink    []string

	memo memo
}

func NewProxy(inner Target, overrideName, overrideRoot string, overrideCompile, overrideLink []string) *Proxy {
	return &Proxy{
		inner:           inner,
		overrideName:    overrideName,
		overrideRoot:    overrideRoot,
		overrideCompile: overrideCompile,
		overrideLink:    overrideLink,
		memo:            newMemo(),
	}
}

func (p *Proxy) overrideCtx(ctx *Context) *Context {
	return ctx.withOverride(p.overrideName, p.overrideRoot, p.overrideCompile, p.overrideLink)
}

func (p *Proxy) Output(ctx *Context) string {
	return p.inner.Output(p.overrideCtx(ctx))
}

func (p *Proxy) Plan(ctx *Context) (*exec.Handle, error) {
	return p.memo.once(ctx, func() (*exec.Handle, error) {
		scoped := p.overrideCtx(ctx).ChildPlan()
		handle, err := p.inner.Plan(scoped)
		scoped.MergePlan()
		return handle, err
	})
}

// ModuleProxy is the ModuleTarget-flavored Proxy, used to re-export an
// upstream module interface target under the downstream package's view.
type ModuleProxy struct {
	*Proxy
	inner ModuleTarget
}

func NewModuleProxy(inner ModuleTarget, overrideName, overrideRoot string, overrideCompile, overrideLink []string) *ModuleProxy {
	return &ModuleProxy{
		Proxy: NewProxy(inner, overrideName, overrideRoot, overrideCompile, overrideLink),
		inner: inner,
	}
}

func (p *ModuleProxy) ModuleName() string { return p.inner.ModuleName() }

// ModuleDeps wraps each of the inner target's module deps in a proxy
// carrying the same override, so recursive moduleMap collection stays
// inside the proxied context all the way down.
func (p *ModuleProxy) ModuleDeps() []ModuleTarget {
	deps := p.inner.ModuleDeps()
	wrapped := make([]ModuleTarget, len(deps))
	for i, d := range deps {
		wrapped[i] = NewModuleProxy(d, p.overrideName, p.overrideRoot, p.overrideCompile, p.overrideLink)
	}
	return wrapped
}
