// Package exec implements the dependency graph executor (spec component
// A): a concurrent DAG of fallible tasks with completion, cancellation,
// and node removal. Planning (AddNode calls before RunOn) is
// single-threaded; parallelism begins only once RunOn attaches a worker
// pool, matching spec §5's ordering guarantees.
package exec

import (
	"context"
	"sync"

	"github.com/modbuild/modbuild/internal/errs"
)

// Task is the unit of work a node performs. It receives the owning
// Graph so a task may dynamically expand the graph (add further nodes)
// before returning, and a context carrying the pool's best-effort
// cancellation signal.
type Task func(ctx context.Context, g *Graph) error

type nodeState int

const (
	statePending nodeState = iota
	stateRunning
	stateFinished
)

// node is the executor's internal scheduling unit.
type node struct {
	task       Task
	state      nodeState
	unmetDeps  int
	dependents []*node
	future     *Future
}

// Future resolves once a node has finished, to either nil or the error
// the task returned (or errs.Terminated if the graph was torn down
// before the node could run).
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until the node this future belongs to has finished.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Handle is returned by AddNode. TakeFuture is callable once; a second
// call returns nil, matching the "future taken exactly once" contract.
type Handle struct {
	n     *node
	mu    sync.Mutex
	taken bool
}

func (h *Handle) TakeFuture() *Future {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.taken {
		return nil
	}
	h.taken = true
	return h.n.future
}

// Graph is the single DepGraph shared across one build invocation. Its
// node list is protected by one mutex, as spec §5 requires: all state
// transitions, parent-counter decrements, and list removals happen under
// it.
type Graph struct {
	mu          sync.Mutex
	nodes       map[*node]struct{} // every node added and not yet finished
	pool        *pool
	terminated  bool
	firstErr    error
	firstErrSet bool
}

// NewGraph creates an empty graph with no worker pool; RunOn's
// parallelism argument bounds the pool it attaches (<= 0 means
// unbounded).
func NewGraph() *Graph {
	return &Graph{nodes: make(map[*node]struct{})}
}

// AddNode inserts a pending node depending on the given handles. For
// every dep not yet Finished, a back-reference is recorded and the new
// node's unmet-dependency counter is incremented. If a pool is already
// attached (RunOn was called previously — this is a dynamic expansion
// from within a running task) and the node has no unmet deps, it is
// posted immediately.
func (g *Graph) AddNode(task Task, deps ...*Handle) *Handle {
	n := &node{
		task:   task,
		future: &Future{done: make(chan struct{})},
	}

	g.mu.Lock()
	if g.terminated {
		g.mu.Unlock()
		n.state = stateFinished
		n.future.resolve(&errs.Terminated{})
		return &Handle{n: n}
	}

	for _, d := range deps {
		dn := d.n
		if dn.state != stateFinished {
			dn.dependents = append(dn.dependents, n)
			n.unmetDeps++
		}
	}
	n.state = statePending
	g.nodes[n] = struct{}{}
	ready := n.unmetDeps == 0
	p := g.pool
	g.mu.Unlock()

	if ready && p != nil {
		g.post(n)
	}
	return &Handle{n: n}
}

// RunOn attaches the worker pool and starts every currently-pending node
// whose unmet-dependency count is zero. Non-blocking.
func (g *Graph) RunOn(parallelism int) {
	g.mu.Lock()
	if g.pool != nil || g.terminated {
		g.mu.Unlock()
		return
	}
	g.pool = newPool(parallelism)
	var ready []*node
	for n := range g.nodes {
		if n.state == statePending && n.unmetDeps == 0 {
			ready = append(ready, n)
		}
	}
	g.mu.Unlock()

	for _, n := range ready {
		g.post(n)
	}
}

// post marks n Running and submits it to the pool. When n finishes, its
// dependents are re-evaluated: a node left with exactly one freshly-ready
// dependent is run inline by the same goroutine (the "pool permits it"
// optimization); two or more are each given a fresh goroutine (the
// "new-thread hint", so concurrent waiters are released in parallel).
func (g *Graph) post(n *node) {
	g.mu.Lock()
	n.state = stateRunning
	g.mu.Unlock()

	g.pool.Go(func(ctx context.Context) {
		current := n
		for current != nil {
			err := current.task(ctx, g)
			inline, parallel := g.complete(current, err)
			if err != nil {
				return
			}
			for _, next := range parallel {
				g.post(next)
			}
			current = inline
			if current != nil {
				g.mu.Lock()
				current.state = stateRunning
				g.mu.Unlock()
			}
		}
	})
}

// complete finalizes n's state and future, removes it from the node
// list, and decrements its dependents' unmet counters. It returns the
// dependent to run inline (if exactly one became ready) and the set of
// dependents to run on fresh goroutines (if more than one became ready).
// On failure it terminates the whole graph.
func (g *Graph) complete(n *node, err error) (inline *node, parallel []*node) {
	g.mu.Lock()
	n.state = stateFinished
	delete(g.nodes, n)

	if err != nil && !g.firstErrSet {
		g.firstErr = err
		g.firstErrSet = true
	}

	var ready []*node
	for _, dep := range n.dependents {
		dep.unmetDeps--
		if dep.unmetDeps == 0 {
			ready = append(ready, dep)
		}
	}
	n.dependents = nil
	g.mu.Unlock()

	n.future.resolve(err)

	if err != nil {
		g.Terminate()
		return nil, nil
	}

	switch len(ready) {
	case 0:
		return nil, nil
	case 1:
		return ready[0], nil
	default:
		return nil, ready
	}
}

// Terminate clears the node list, detaches the pool, and poisons the
// futures of every not-yet-started node. Already-running tasks are left
// to complete or fail on their own; the pool's context is cancelled as a
// best-effort signal only.
func (g *Graph) Terminate() {
	g.mu.Lock()
	if g.terminated {
		g.mu.Unlock()
		return
	}
	g.terminated = true
	toPoison := g.nodes
	g.nodes = make(map[*node]struct{})
	p := g.pool
	g.mu.Unlock()

	for n := range toPoison {
		if n.state == statePending {
			n.state = stateFinished
			n.future.resolve(&errs.Terminated{})
		}
	}

	if p != nil {
		p.detach()
	}
}

// FirstError returns the first error surfaced by any task this build,
// nil if none.
func (g *Graph) FirstError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.firstErr
}

// Wait blocks until every goroutine the pool has ever started returns.
// Used by the top-level driver after collecting the futures it cares
// about, to make sure background cleanup (e.g. cascading Terminate) has
// settled before reporting the final error.
func (g *Graph) Wait() {
	g.mu.Lock()
	p := g.pool
	g.mu.Unlock()
	if p != nil {
		p.wait()
	}
}
