// Package pipeline runs the producer loop: poll active symbols, fetch one
// waveform per symbol, check acquisition coherence, apply the acceptance
// filter, and commit to the coordinator.
package pipeline

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/logger"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/coordinator"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/filter"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/stream"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/symbols"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/waveform"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// Config holds the tunables read once at pipeline construction, mirroring
// the distilled spec's environment-variable surface.
type Config struct {
	EmptySetSleep    time.Duration // default 50ms
	MaxCoherenceTry  int           // default 3
	ParallelReads    bool          // USE_PARALLEL_READS, overridden false by DISABLE_PARALLEL_READS
	ParallelThresh   int           // PARALLEL_THRESHOLD, default 2
	ParallelWorkers  int           // PARALLEL_WORKERS, default 4
	ChunkSize        int32         // hint passed to the fetcher; 0 lets the instrument pick
	RequestedSymbols []string      // nil = every currently-available symbol
}

// ConfigFromEnv builds a Config from the process environment, following the
// same USE_PARALLEL_READS / PARALLEL_THRESHOLD / PARALLEL_WORKERS /
// DISABLE_PARALLEL_READS precedence described in SPEC_FULL.md §4.4.
func ConfigFromEnv() Config {
	cfg := Config{
		EmptySetSleep:   50 * time.Millisecond,
		MaxCoherenceTry: 3,
		ParallelThresh:  2,
		ParallelWorkers: 4,
	}
	cfg.ParallelReads = envBool("USE_PARALLEL_READS", false)
	if envBool("DISABLE_PARALLEL_READS", false) {
		cfg.ParallelReads = false
	}
	if v := envInt("PARALLEL_THRESHOLD", -1); v >= 0 {
		cfg.ParallelThresh = v
	}
	if v := envInt("PARALLEL_WORKERS", -1); v >= 0 {
		cfg.ParallelWorkers = v
	}
	return cfg
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Pipeline is the producer: one dedicated goroutine that fetches, checks
// coherence, filters, and commits acquisitions until the session is broken,
// closed, or its context is canceled.
type Pipeline struct {
	client      wire.Client
	registry    *symbols.Registry
	coordinator *coordinator.Coordinator
	cfg         Config

	filter   filter.Filter
	prevHdrs filter.Headers
}

// New builds a Pipeline wired to client, registry, and coordinator. filter
// may be nil, defaulting to filter.AnyAcq.
func New(client wire.Client, registry *symbols.Registry, coord *coordinator.Coordinator, cfg Config, f filter.Filter) *Pipeline {
	if f == nil {
		f = filter.AnyAcq
	}
	return &Pipeline{client: client, registry: registry, coordinator: coord, cfg: cfg, filter: f}
}

// SetFilter replaces the acceptance filter, effective from the next iteration.
func (p *Pipeline) SetFilter(f filter.Filter) {
	if f == nil {
		f = filter.AnyAcq
	}
	p.filter = f
}

// Run executes the producer loop until ctx is canceled or isBroken reports
// true. It is intended to run on its own goroutine; the caller joins it via
// a sync.WaitGroup the way transport.Session joins its keep-alive loop.
func (p *Pipeline) Run(ctx context.Context, isBroken func() bool) {
	var transID uint64 = 1
	for {
		if ctx.Err() != nil {
			return
		}
		if isBroken != nil && isBroken() {
			return
		}

		if err := p.registry.Refresh(ctx); err != nil {
			logger.Logger().Warn("pipeline: list_available failed", "error", err)
			if !sleepCtx(ctx, p.cfg.EmptySetSleep) {
				return
			}
			continue
		}

		active := p.effectiveSymbols()
		if len(active) == 0 {
			if !sleepCtx(ctx, p.cfg.EmptySetSleep) {
				return
			}
			continue
		}

		bundle, ok := p.fetchCoherent(ctx, active, transID)
		p.coordinator.FlushPending()
		if !ok {
			continue
		}
		transID = bundle.TransID + 1

		current := bundle.Headers()
		accepted, filterErr := filter.Apply(p.filter, p.prevHdrs, toFilterHeaders(current))
		if filterErr != nil {
			logger.Logger().Warn("pipeline: acceptance filter error, treating as reject", "error", filterErr)
		}
		if !accepted {
			continue
		}

		p.prevHdrs = toFilterHeaders(current)
		p.coordinator.Commit(bundle)
	}
}

func toFilterHeaders(h map[string]*wire.WaveformHeader) filter.Headers {
	if h == nil {
		return nil
	}
	return filter.Headers(h)
}

// effectiveSymbols computes the set described in SPEC_FULL.md §4.2: every
// available symbol if none were explicitly requested, else the
// case-insensitive intersection of the requested list with the available set.
func (p *Pipeline) effectiveSymbols() []string {
	if len(p.cfg.RequestedSymbols) == 0 {
		return p.registry.ActiveSymbols()
	}
	out := make([]string, 0, len(p.cfg.RequestedSymbols))
	for _, requested := range p.cfg.RequestedSymbols {
		if canonical, err := p.registry.Resolve(requested); err == nil {
			out = append(out, canonical)
		}
	}
	return out
}

// fetchCoherent fetches one waveform per symbol in active, retrying up to
// MaxCoherenceTry times if the returned headers do not share one trans_id
// (the server produced a new acquisition mid-fetch). ok is false if every
// retry failed to produce a coherent bundle or a hard fetch error occurred
// on the final attempt.
func (p *Pipeline) fetchCoherent(ctx context.Context, active []string, hint uint64) (*coordinator.AcquisitionBundle, bool) {
	attempts := p.cfg.MaxCoherenceTry
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		entries, err := p.fetchAll(ctx, active)
		if err != nil {
			logger.Logger().Warn("pipeline: fetch failed", "error", err, "attempt", attempt+1)
			continue
		}
		transID, coherent := coherentTransID(entries)
		if coherent {
			return coordinator.NewAcquisitionBundle(transID, entries), true
		}
		logger.Logger().Debug("pipeline: acquisition coherence check failed, retrying", "attempt", attempt+1)
	}
	return nil, false
}

func coherentTransID(entries map[string]coordinator.BundleEntry) (uint64, bool) {
	var transID uint64
	first := true
	for _, entry := range entries {
		if entry.Header == nil {
			continue
		}
		if first {
			transID = entry.Header.TransID
			first = false
			continue
		}
		if entry.Header.TransID != transID {
			return 0, false
		}
	}
	return transID, true
}

// fetchAll retrieves one waveform per symbol, sequentially or via a bounded
// worker pool when parallel reads are enabled and len(symbols) meets the
// configured threshold.
func (p *Pipeline) fetchAll(ctx context.Context, symbolList []string) (map[string]coordinator.BundleEntry, error) {
	if p.cfg.ParallelReads && len(symbolList) >= p.cfg.ParallelThresh {
		return p.fetchAllParallel(ctx, symbolList)
	}
	return p.fetchAllSequential(ctx, symbolList)
}

func (p *Pipeline) fetchAllSequential(ctx context.Context, symbolList []string) (map[string]coordinator.BundleEntry, error) {
	entries := make(map[string]coordinator.BundleEntry, len(symbolList))
	for _, symbol := range symbolList {
		entry, err := p.fetchOne(ctx, symbol)
		if err != nil {
			return nil, err
		}
		entries[symbol] = entry
	}
	return entries, nil
}

func (p *Pipeline) fetchAllParallel(ctx context.Context, symbolList []string) (map[string]coordinator.BundleEntry, error) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ParallelWorkers)

	results := make([]coordinator.BundleEntry, len(symbolList))
	for i, symbol := range symbolList {
		i, symbol := i, symbol
		g.Go(func() error {
			entry, err := p.fetchOne(gCtx, symbol)
			if err != nil {
				return err
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make(map[string]coordinator.BundleEntry, len(symbolList))
	for i, symbol := range symbolList {
		entries[symbol] = results[i]
	}
	return entries, nil
}

func (p *Pipeline) fetchOne(ctx context.Context, symbol string) (coordinator.BundleEntry, error) {
	fetched, err := stream.FetchRaw(ctx, p.client, symbol, p.cfg.ChunkSize)
	if err != nil {
		return coordinator.BundleEntry{}, err
	}
	defer fetched.ReleaseBuffer()

	if !fetched.Header.HasData {
		return coordinator.BundleEntry{Header: fetched.Header, Waveform: &waveform.TypedWaveform{}}, nil
	}

	typed, err := waveform.Build(fetched.Header, fetched.Buffer)
	if err != nil {
		return coordinator.BundleEntry{}, tekhsierrors.NewProtocolError("pipeline.build_waveform", err)
	}
	return coordinator.BundleEntry{Header: fetched.Header, Waveform: typed}, nil
}

// sleepCtx sleeps for d or returns false early if ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
