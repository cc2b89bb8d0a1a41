package coordinator

import (
	"sync/atomic"
	"time"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/waveform"
)

// Scope is the read-access handle returned by AccessData. While open, it
// pins the coordinator's committed bundle so every GetData call through it
// observes one trans_id. Release must be called exactly once.
type Scope struct {
	coordinator *Coordinator
	bundle      *AcquisitionBundle
	released    atomic.Bool
}

// TransID returns the pinned bundle's transaction id.
func (s *Scope) TransID() uint64 { return s.bundle.TransID }

// CommitTime returns the pinned bundle's commit time.
func (s *Scope) CommitTime() time.Time { return s.bundle.CommitTime.AsTime() }

// Symbols returns the canonical symbol names present in the pinned bundle.
func (s *Scope) Symbols() []string { return s.bundle.Symbols() }

// GetData returns the TypedWaveform for symbol (case-insensitive) from the
// pinned bundle. Fails with UnknownSymbolError if symbol is not present, or
// NoAccessScopeError if the scope has already been released.
func (s *Scope) GetData(symbol string) (*waveform.TypedWaveform, error) {
	if s.released.Load() {
		return nil, tekhsierrors.NewNoAccessScopeError()
	}
	entry, ok := s.bundle.Get(symbol)
	if !ok {
		return nil, tekhsierrors.NewUnknownSymbolError(symbol)
	}

	c := s.coordinator
	c.mu.Lock()
	c.observed = true
	c.mu.Unlock()

	return entry.Waveform, nil
}

// Release unpins the coordinator, allowing a pending bundle (if any) or the
// next produced bundle to be committed, and wakes any blocked AccessData
// callers so they can contend for the now-free scope. Safe to call more
// than once; only the first call has an effect.
func (s *Scope) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	c := s.coordinator
	c.mu.Lock()
	c.scopeOpen = false
	c.cond.Broadcast()
	c.mu.Unlock()
}
