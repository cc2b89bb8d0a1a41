// Package symbols discovers and caches the instrument's currently active
// source names (channels, math, ref waveforms) and resolves a caller-supplied
// symbol name against that cache case-insensitively.
package symbols

import (
	"context"
	"strings"
	"sync"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// Registry caches the instrument's active source names between Refresh
// calls. Safe for concurrent use.
type Registry struct {
	client wire.Client

	mu    sync.RWMutex
	names map[string]string // lowercase -> canonical instrument-cased name
}

// New creates an empty Registry bound to client.
func New(client wire.Client) *Registry {
	return &Registry{client: client, names: make(map[string]string)}
}

// Refresh re-queries AvailableNames and replaces the cached set.
func (r *Registry) Refresh(ctx context.Context) error {
	reply, err := r.client.AvailableNames(ctx, &wire.ConnectRequest{})
	if err != nil {
		return tekhsierrors.NewConnectionError("symbols.refresh", err)
	}
	if reply.Status != wire.ConnectStatusSuccess {
		return tekhsierrors.NewConnectionError("symbols.refresh", errStatusNotSuccess(reply.Status))
	}

	next := make(map[string]string, len(reply.SymbolNames))
	for _, name := range reply.SymbolNames {
		next[strings.ToLower(name)] = name
	}

	r.mu.Lock()
	r.names = next
	r.mu.Unlock()
	return nil
}

// ActiveSymbols returns the last-refreshed set of canonical source names, in
// no particular order.
func (r *Registry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, name)
	}
	return out
}

// Resolve looks up symbol case-insensitively against the cached set and
// returns its canonical instrument-cased form, or UnknownSymbolError if the
// symbol was not present at the last Refresh.
func (r *Registry) Resolve(symbol string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.names[strings.ToLower(symbol)]; ok {
		return canonical, nil
	}
	return "", tekhsierrors.NewUnknownSymbolError(symbol)
}

// Contains reports whether symbol is present in the cached set, case-insensitively.
func (r *Registry) Contains(symbol string) bool {
	_, err := r.Resolve(symbol)
	return err == nil
}
