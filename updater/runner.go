/*
Copyright 2026 Tenant Ops, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package updater

import (
	"context"

	"github.com/chainguard-dev/clog"
	"github.com/tenantops/rollout/coordinate"
	"golang.org/x/sync/errgroup"
)

// Lease is a Worktree that must be returned when its holder is done.
type Lease interface {
	Worktree
	Return(ctx context.Context) error
}

// LeaseFunc acquires a working tree for one worker. The workspace manager's
// Lease method satisfies it via a closure.
type LeaseFunc func(ctx context.Context) (Lease, error)

// RunnerOption configures a BatchRunner.
type RunnerOption func(*BatchRunner)

// WithWorkers sets the number of concurrent workers. The default of 1
// processes coordinates sequentially in input order. Values above 1 lease one
// working tree per worker so no two coordinates share state, but the
// processing order becomes nondeterministic; outcome order still matches
// input order.
func WithWorkers(n int) RunnerOption {
	return func(b *BatchRunner) {
		if n > 0 {
			b.workers = n
		}
	}
}

// BatchRunner iterates update requests through a Coordinator, isolating
// failures per request so one bad coordinate never aborts the batch.
type BatchRunner struct {
	coordinator *Coordinator
	lease       LeaseFunc
	workers     int
}

// NewBatchRunner returns a runner driving the given coordinator over working
// trees acquired from lease.
func NewBatchRunner(coordinator *Coordinator, lease LeaseFunc, opts ...RunnerOption) *BatchRunner {
	b := &BatchRunner{
		coordinator: coordinator,
		lease:       lease,
		workers:     1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run processes every request and returns one outcome per request, in input
// order. The runner never retries; a worker that cannot acquire a working
// tree reports that error as the outcome of each request it would have
// processed.
func (b *BatchRunner) Run(ctx context.Context, reqs []coordinate.UpdateRequest) []Outcome {
	log := clog.FromContext(ctx)
	outcomes := make([]Outcome, len(reqs))

	if b.workers > 1 {
		log.Infof("Processing %d updates with %d workers; processing order is not input order", len(reqs), b.workers)
	}

	indexes := make(chan int)
	var g errgroup.Group
	for range b.workers {
		g.Go(func() error {
			lease, leaseErr := b.lease(ctx)
			for i := range indexes {
				if leaseErr != nil {
					outcomes[i] = failed(reqs[i], StageMaterializeBranch, leaseErr)
					continue
				}
				outcomes[i] = b.coordinator.Process(ctx, lease, reqs[i])
				log.Infof("%s", outcomes[i])
			}
			if lease != nil {
				if err := lease.Return(ctx); err != nil {
					log.Warnf("Returning working tree: %v", err)
				}
			}
			return nil
		})
	}

	for i := range reqs {
		indexes <- i
	}
	close(indexes)
	// Workers only ever return nil; errgroup is used for its goroutine
	// lifecycle management.
	_ = g.Wait()

	return outcomes
}
