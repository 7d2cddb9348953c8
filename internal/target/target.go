package target

import (
	"sync"

	"github.com/modbuild/modbuild/internal/exec"
)

// Target is anything the builder can schedule: it reports a
// deterministic output path for a given Context and plans itself onto
// that Context's shared graph at most once.
//
// Plan returns nil when the target's output is already up to date and
// no scheduler node was emitted for it — callers must treat a nil
// handle as "already satisfied" rather than as a dependency edge.
type Target interface {
	Output(ctx *Context) string
	Plan(ctx *Context) (*exec.Handle, error)
}

// ModuleTarget is a Target that also carries BMI module identity, so it
// can appear in another target's moduleMap and in recursive module-map
// collection.
type ModuleTarget interface {
	Target
	ModuleName() string
	ModuleDeps() []ModuleTarget
}

// memo gives every concrete target type at-most-once planning per
// Context identity (see Context.key). A per-key sync.Once guards the
// actual computation so two callers racing to Plan the same target
// under the same Context never invoke fn twice, even though planning is
// single-threaded by convention — TargetProxy's scoped child contexts
// make "single-threaded" a per-Context property, not a whole-build one.
type memo struct {
	mu      sync.Mutex
	entries map[string]*memoEntry
}

type memoEntry struct {
	once   sync.Once
	handle *exec.Handle
	err    error
}

func newMemo() memo {
	return memo{entries: make(map[string]*memoEntry)}
}

func (m *memo) once(ctx *Context, fn func() (*exec.Handle, error)) (*exec.Handle, error) {
	key := ctx.key()

	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoEntry{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.handle, e.err = fn()
	})
	return e.handle, e.err
}
