// Package throttle implements the four independent rate gates described in
// spec.md §4.1: operations/sec, I/O-ops/sec, throughput bytes/sec, and
// concurrent open files.
//
// Grounded on throttle/src/semaphore.rs's Semaphore{flag, sem} type (the
// enabled-flag-checked-before-touching-the-counting-structure design is
// carried over directly) and common/src/throttle.rs's open-files permit
// guard.
package throttle

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Permit is returned by an OpenFilesGate acquisition and must be released
// when the held resource (an open file descriptor) is closed.
type Permit struct {
	sem    *semaphore.Weighted
	weight int64
}

// Release returns the permit. Safe to call on a zero-value Permit (the gate
// was disabled at acquisition time).
func (p *Permit) Release() {
	if p == nil || p.sem == nil {
		return
	}
	p.sem.Release(p.weight)
}

// OpenFilesGate bounds the number of concurrently open file descriptors the
// engine may hold. Limit 0 means "unlimited": the gate short-circuits and
// acquisitions never block, matching spec.md §4.1.
type OpenFilesGate struct {
	limit int64
	sem   *semaphore.Weighted
}

// NewOpenFilesGate creates a gate with the given limit (0 = unlimited).
func NewOpenFilesGate(limit int) *OpenFilesGate {
	g := &OpenFilesGate{}
	g.Setup(limit)
	return g
}

// Setup changes the gate's limit. Per spec.md §4.1, shrinking a gate is
// honored only as permits are naturally released (there is no way to evict
// permits already outstanding); growing is effectively instantaneous since
// a fresh semaphore.Weighted is swapped in with full capacity. Setup is not
// safe to call while acquisitions are outstanding against the previous
// semaphore; callers reconfigure only between runs.
func (g *OpenFilesGate) Setup(limit int) {
	g.limit = int64(limit)
	if limit <= 0 {
		g.sem = nil
		return
	}
	g.sem = semaphore.NewWeighted(int64(limit))
}

// Enabled reports whether this gate enforces a limit.
func (g *OpenFilesGate) Enabled() bool { return g.sem != nil }

// Acquire blocks until one open-file slot is available, or ctx is
// cancelled. When the gate is disabled it returns immediately with a
// no-op Permit.
func (g *OpenFilesGate) Acquire(ctx context.Context) (*Permit, error) {
	if g.sem == nil {
		return &Permit{}, nil
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Permit{sem: g.sem, weight: 1}, nil
}

// RateGate is a non-returnable, replenished token bucket used for
// ops/sec, iops/sec and throughput bytes/sec. Backed by golang.org/x/time/rate,
// which already implements "periodic replenisher restores the gate's full
// budget" as a token bucket refilled continuously at Limit() per second —
// see SPEC_FULL.md §4.1.
type RateGate struct {
	limiter *rate.Limiter
}

// NewRateGate creates a gate that allows `limit` units per second with a
// burst equal to limit (so up to a full second's budget can be taken at
// once; tokens refill continuously, restoring an empty bucket within one
// second). limit <= 0 disables the gate.
func NewRateGate(limit int) *RateGate {
	g := &RateGate{}
	g.Setup(limit)
	return g
}

// Setup reconfigures the gate's limit (0 = unlimited).
func (g *RateGate) Setup(limit int) {
	if limit <= 0 {
		g.limiter = nil
		return
	}
	g.limiter = rate.NewLimiter(rate.Limit(limit), limit)
}

// Enabled reports whether this gate enforces a limit.
func (g *RateGate) Enabled() bool { return g.limiter != nil }

// Consume acquires and forgets n units, blocking until they are available
// or ctx is cancelled. A no-op when the gate is disabled.
func (g *RateGate) Consume(ctx context.Context, n int) error {
	if g.limiter == nil || n <= 0 {
		return nil
	}
	// rate.Limiter.WaitN requires n <= burst; our burst equals the
	// configured limit, so split oversized requests into limit-sized
	// chunks (a single file write larger than the per-second budget
	// must still eventually succeed, just slowly).
	burst := g.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := g.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
