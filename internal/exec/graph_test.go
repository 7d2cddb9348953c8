package exec

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, g *Graph) error { return nil }

func TestLinearChainRunsInOrder(t *testing.T) {
	g := NewGraph()
	var order []int32
	var counter int32

	mk := func(want int32) Task {
		return func(ctx context.Context, g *Graph) error {
			atomic.AddInt32(&counter, 1)
			order = append(order, want)
			return nil
		}
	}

	h1 := g.AddNode(mk(1))
	h2 := g.AddNode(mk(2), h1)
	h3 := g.AddNode(mk(3), h2)

	g.RunOn(4)
	fl := NewFutureList(g, h3.TakeFuture())
	require.NoError(t, fl.Wait())
	require.Equal(t, []int32{1, 2, 3}, order)
	_ = h1
	_ = h2
}

func TestFailurePropagatesAndPoisonsPending(t *testing.T) {
	g := NewGraph()
	boom := errors.New("boom")

	h1 := g.AddNode(func(ctx context.Context, g *Graph) error { return boom })
	h2 := g.AddNode(noop, h1)
	h3 := g.AddNode(noop) // independent node, not a dependent of h1

	g.RunOn(4)

	err1 := h1.TakeFuture().Wait()
	require.ErrorIs(t, err1, boom)

	err2 := h2.TakeFuture().Wait()
	require.Error(t, err2, "dependent of a failed node must never run")

	// the independent node may or may not have started before Terminate;
	// either way its future must resolve.
	_ = h3.TakeFuture().Wait()
}

func TestDiamondDependencyRunsConcurrently(t *testing.T) {
	g := NewGraph()
	var concurrent int32
	var maxConcurrent int32

	track := func(ctx context.Context, g *Graph) error {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil
	}

	root := g.AddNode(noop)
	left := g.AddNode(track, root)
	right := g.AddNode(track, root)
	joinCalled := int32(0)
	join := g.AddNode(func(ctx context.Context, g *Graph) error {
		atomic.AddInt32(&joinCalled, 1)
		return nil
	}, left, right)

	g.RunOn(4)
	require.NoError(t, NewFutureList(g, join.TakeFuture()).Wait())
	require.Equal(t, int32(1), atomic.LoadInt32(&joinCalled))
	require.GreaterOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(2))
}

func TestTakeFutureOnlyOnce(t *testing.T) {
	g := NewGraph()
	h := g.AddNode(noop)
	g.RunOn(1)

	f1 := h.TakeFuture()
	require.NotNil(t, f1)
	f2 := h.TakeFuture()
	require.Nil(t, f2)
	require.NoError(t, f1.Wait())
}

func TestDynamicExpansionFromWithinTask(t *testing.T) {
	g := NewGraph()
	var childRan int32

	parent := g.AddNode(func(ctx context.Context, g *Graph) error {
		child := g.AddNode(func(ctx context.Context, g *Graph) error {
			atomic.AddInt32(&childRan, 1)
			return nil
		})
		// the parent task can't itself wait on the child synchronously
		// without deadlocking the pool slot, so just confirm AddNode is
		// safe to call from within a running task.
		_ = child
		return nil
	})

	g.RunOn(2)
	require.NoError(t, NewFutureList(g, parent.TakeFuture()).Wait())
	// give the dynamically added node a moment to run on its own slot
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&childRan))
}
