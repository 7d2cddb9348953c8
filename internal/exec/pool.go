package exec

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// pool is the bounded set of OS worker threads (goroutines, in Go's
// cooperative scheduler) that execute scheduler nodes. It is a thin
// wrapper over golang.org/x/sync/errgroup — the same package the teacher
// build system (qobs) uses to cap concurrent compile/link jobs via
// errgroup.SetLimit.
type pool struct {
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// newPool creates a pool with at most limit concurrently running goroutines.
// limit <= 0 means unbounded.
func newPool(limit int) *pool {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	return &pool{eg: eg, ctx: ctx, cancel: cancel}
}

func (p *pool) Go(fn func(ctx context.Context)) {
	p.eg.Go(func() error {
		fn(p.ctx)
		return nil
	})
}

// wait blocks until every goroutine submitted to the pool has returned.
func (p *pool) wait() {
	_ = p.eg.Wait()
}

// detach cancels the pool's context; in-flight goroutines observe this
// as a best-effort cancellation signal (spec §5: no guaranteed kill of an
// in-flight compiler subprocess).
func (p *pool) detach() {
	p.cancel()
}
