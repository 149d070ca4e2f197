package migration

import (
	"context"
	"sync"
)

// PendingSet is the coalescing update queue: a set of keys awaiting
// re-replication plus a single drain worker. Inserting a key already present
// is a no-op, so concurrent updates to the same key collapse into one
// replication pass. A key that changes N times while a drain is running is
// replicated at most twice: once by the in-flight pass, once by the next.
type PendingSet struct {
	mu       sync.Mutex
	keys     map[string]struct{}
	draining bool

	replicate func(ctx context.Context, key string)
	parallel  int
}

// NewPendingSet creates a queue that hands drained keys to replicate with at
// most parallel concurrent invocations
func NewPendingSet(parallel int, replicate func(ctx context.Context, key string)) *PendingSet {
	if parallel < 1 {
		parallel = 1
	}
	return &PendingSet{
		keys:      make(map[string]struct{}),
		replicate: replicate,
		parallel:  parallel,
	}
}

// Add enqueues a key and kicks the drain worker if it is idle
func (p *PendingSet) Add(ctx context.Context, key string) {
	p.mu.Lock()
	p.keys[key] = struct{}{}
	kick := !p.draining
	if kick {
		p.draining = true
	}
	p.mu.Unlock()

	if kick {
		go p.drain(ctx)
	}
}

// drain repeatedly swaps the set for an empty one and replicates the
// snapshot. The lock is held only for the swap; replication runs unlocked so
// new arrivals accumulate for the next pass.
func (p *PendingSet) drain(ctx context.Context) {
	for {
		p.mu.Lock()
		if len(p.keys) == 0 {
			p.draining = false
			p.mu.Unlock()
			return
		}
		snapshot := p.keys
		p.keys = make(map[string]struct{})
		p.mu.Unlock()

		sem := make(chan struct{}, p.parallel)
		var wg sync.WaitGroup
		for key := range snapshot {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(k string) {
				defer wg.Done()
				defer func() { <-sem }()
				p.replicate(ctx, k)
			}(key)
		}
		wg.Wait()

		if ctx.Err() != nil {
			p.mu.Lock()
			p.draining = false
			p.mu.Unlock()
			return
		}
	}
}

// Len returns the number of keys currently pending
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Idle reports whether no drain is running and nothing is pending
func (p *PendingSet) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.draining && len(p.keys) == 0
}

// Clear discards all pending keys. An in-flight drain finishes its current
// snapshot but finds nothing afterwards.
func (p *PendingSet) Clear() {
	p.mu.Lock()
	p.keys = make(map[string]struct{})
	p.mu.Unlock()
}
