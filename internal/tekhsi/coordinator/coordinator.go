// Package coordinator implements the consistency-set access gate: it holds
// exactly one committed AcquisitionBundle at a time, serializes foreground
// AccessData scopes against it, and pins the committed bundle for the
// lifetime of an open scope so every GetData call inside it observes one
// trans_id.
package coordinator

import (
	"context"
	"sync"
	"time"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/logger"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// WaitMode selects AccessData's entry precondition.
type WaitMode int

const (
	// NewData blocks until the committed bundle has not yet been observed
	// via GetData since its commit. This is the default mode.
	NewData WaitMode = iota
	// NextAcq blocks until a bundle commits strictly after the call time.
	NextAcq
	// Time sleeps for the given duration, then behaves as NextAcq.
	Time
	// AnyAcq returns immediately with whatever is committed, behaving as
	// NextAcq only if nothing has ever been committed.
	AnyAcq
)

func (m WaitMode) String() string {
	switch m {
	case NewData:
		return "NewData"
	case NextAcq:
		return "NextAcq"
	case Time:
		return "Time"
	case AnyAcq:
		return "AnyAcq"
	default:
		return "Unknown"
	}
}

// Callback is invoked once per committed bundle, synchronously on the
// pipeline goroutine that flushed it, in commit order. It runs after the
// coordinator's mutex is released and without pinning the bundle, so a
// foreground scope may open while it runs. Re-entry into AccessData is not
// guarded: a call from inside the callback that waits for a further commit
// never returns, since the goroutine that would produce it is the one
// running the callback.
type Callback func(*AcquisitionBundle)

// Coordinator is the access gate. Zero value is not usable; use New.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	committed *AcquisitionBundle
	observed  bool
	scopeOpen bool
	pending   *AcquisitionBundle

	closed bool
	broken bool

	callback Callback
}

// New creates an empty Coordinator with no committed bundle.
func New() *Coordinator {
	c := &Coordinator{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetCallback replaces the commit callback. Takes effect from the next commit.
func (c *Coordinator) SetCallback(cb Callback) {
	c.mu.Lock()
	c.callback = cb
	c.mu.Unlock()
}

// MarkBroken transitions the coordinator to the broken state, waking any
// blocked AccessData callers with SessionBrokenError.
func (c *Coordinator) MarkBroken() {
	c.mu.Lock()
	c.broken = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Close transitions the coordinator to the closed state. In-flight scopes
// complete normally; new AccessData calls fail with SessionClosedError.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Committed returns the currently committed bundle, or nil if none has ever
// been committed. Intended for diagnostics; foreground reads go through
// AccessData/GetData.
func (c *Coordinator) Committed() *AcquisitionBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Commit offers bundle for commit. If no scope is open, it becomes the
// committed bundle immediately and the callback (if any) runs before Commit
// returns. If a scope is open, the pipeline may not replace the committed
// bundle yet: bundle is stashed as pending, overwriting any bundle already
// waiting there, and Commit returns without blocking so the pipeline can
// keep draining the server stream.
func (c *Coordinator) Commit(bundle *AcquisitionBundle) {
	c.mu.Lock()
	if c.scopeOpen {
		c.pending = bundle
		c.mu.Unlock()
		return
	}
	c.pending = nil
	cb := c.commitLocked(bundle)
	c.mu.Unlock()
	if cb != nil {
		cb(bundle)
	}
}

// FlushPending promotes a stashed pending bundle to committed if the pin has
// since been released. The pipeline calls this once per loop iteration so a
// bundle produced while pinned is not lost once the scope ends. A no-op if
// there is no pending bundle or a scope is still open.
func (c *Coordinator) FlushPending() {
	c.mu.Lock()
	if c.scopeOpen || c.pending == nil {
		c.mu.Unlock()
		return
	}
	bundle := c.pending
	c.pending = nil
	cb := c.commitLocked(bundle)
	c.mu.Unlock()
	if cb != nil {
		cb(bundle)
	}
}

// commitLocked must be called with mu held. It returns the callback to
// invoke (the caller must unlock first) so the callback never runs under
// the coordinator's mutex.
func (c *Coordinator) commitLocked(bundle *AcquisitionBundle) Callback {
	c.committed = bundle
	c.observed = false
	c.cond.Broadcast()
	return c.callback
}

func (c *Coordinator) liveErrLocked() error {
	if c.closed {
		return tekhsierrors.NewSessionClosedError()
	}
	if c.broken {
		return tekhsierrors.NewSessionBrokenError()
	}
	return nil
}

// modePreconditionLocked reports whether mode's precondition currently
// holds. Must be called with mu held.
func (c *Coordinator) modePreconditionLocked(mode WaitMode, entryTime time.Time) bool {
	switch mode {
	case NewData:
		return c.committed != nil && !c.observed
	case NextAcq:
		return c.committed != nil && c.committed.CommitTime.AsTime().After(entryTime)
	case AnyAcq:
		return c.committed != nil
	default:
		return true
	}
}

// AccessData blocks until mode's precondition holds, then pins the
// committed bundle and returns a Scope guarding it. The returned Scope's
// Release must be called exactly once (defer is idiomatic) to unpin.
//
// Time mode sleeps for after before evaluating (as NextAcq); ctx cancellation
// aborts the sleep and any subsequent wait, returning ctx.Err().
func (c *Coordinator) AccessData(ctx context.Context, mode WaitMode, after time.Duration) (*Scope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	entryTime := wire.Now()

	if mode == Time {
		if err := sleepCtx(ctx, after); err != nil {
			return nil, err
		}
		mode = NextAcq
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if err := c.liveErrLocked(); err != nil {
			return nil, err
		}
		if !c.scopeOpen && c.modePreconditionLocked(mode, entryTime) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.cond.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	c.scopeOpen = true
	bundle := c.committed
	logger.Logger().Debug("access_data scope opened", "mode", mode.String(), "trans_id", bundle.TransID)
	return &Scope{coordinator: c, bundle: bundle}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
