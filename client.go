// Package tekhsi is a Go client for the Tektronix oscilloscope waveform
// streaming RPC service: connect to an instrument, select active channels,
// and observe the latest complete acquisition through a serialized,
// consistency-guaranteed read gate.
package tekhsi

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tekhsi/tekhsi-go/internal/logger"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/coordinator"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/filter"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/pipeline"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/symbols"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/transport"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// envKeepAliveInterval is the ambient override of transport's default
// keep-alive period, consulted when Options.KeepAliveInterval is zero; it
// lets the 5s production interval be shortened without code changes.
const envKeepAliveInterval = "TEKHSI_KEEPALIVE_INTERVAL"

func keepAliveIntervalFromEnv() time.Duration {
	v := os.Getenv(envKeepAliveInterval)
	if v == "" {
		return transport.DefaultKeepAliveInterval
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return transport.DefaultKeepAliveInterval
	}
	return d
}

// Re-exported so callers don't need to import internal/tekhsi/{coordinator,filter,waveform}.
type (
	// WaitMode selects AccessData's entry precondition.
	WaitMode = coordinator.WaitMode
	// Scope is the read-access handle returned by AccessData.
	Scope = coordinator.Scope
	// AcquisitionBundle is the set of typed waveforms sharing one trans_id.
	AcquisitionBundle = coordinator.AcquisitionBundle
	// Filter decides whether a candidate acquisition should be committed.
	Filter = filter.Filter
	// Callback is invoked once per committed bundle.
	Callback = coordinator.Callback
)

const (
	NewData WaitMode = coordinator.NewData
	NextAcq WaitMode = coordinator.NextAcq
	Time    WaitMode = coordinator.Time
	AnyAcq  WaitMode = coordinator.AnyAcq
)

var (
	// AnyAcqFilter always accepts. It is the default filter.
	AnyAcqFilter = filter.AnyAcq
	// AnyVerticalChangeFilter accepts iff the symbol set changed or some
	// symbol's vertical scaling differs from the previous accepted bundle.
	AnyVerticalChangeFilter = filter.AnyVerticalChange
	// AnyHorizontalChangeFilter accepts iff the symbol set changed or some
	// symbol's horizontal scaling or sample count differs.
	AnyHorizontalChangeFilter = filter.AnyHorizontalChange
)

// Options configures Connect.
type Options struct {
	// ActiveSymbols restricts the pipeline to this set (case-insensitive
	// intersection with the instrument's available set, recomputed every
	// iteration). Nil selects every currently-available symbol.
	ActiveSymbols []string
	// Callback, if non-nil, is invoked synchronously on the pipeline
	// goroutine after every accepted commit.
	Callback Callback
	// AcqFilter, if non-nil, replaces the default AnyAcq filter.
	AcqFilter Filter
	// KeepAliveInterval overrides transport.DefaultKeepAliveInterval; zero
	// keeps the default.
	KeepAliveInterval time.Duration
	// PipelineConfig overrides the pipeline tunables; the zero value means
	// "derive from environment via pipeline.ConfigFromEnv".
	PipelineConfig *pipeline.Config
}

// Client is the consumer-facing handle on one instrument session: the
// connection manager, symbol registry, acquisition pipeline, and
// consistency-set coordinator wired together.
type Client struct {
	session  *transport.Session
	registry *symbols.Registry
	coord    *coordinator.Coordinator
	pipe     *pipeline.Pipeline

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	closed bool
}

// Connect opens a session against client (the wire.Client stub or a real
// generated gRPC client satisfying wire.Client), registers with the
// instrument, and starts the background keep-alive and acquisition pipeline.
func Connect(ctx context.Context, client wire.Client, instrumentURL string, opts Options) (*Client, error) {
	interval := opts.KeepAliveInterval
	if interval <= 0 {
		interval = keepAliveIntervalFromEnv()
	}
	session := transport.New(client, instrumentURL, interval)
	if err := session.Connect(ctx); err != nil {
		return nil, err
	}

	registry := symbols.New(client)
	coord := coordinator.New()
	if opts.Callback != nil {
		coord.SetCallback(opts.Callback)
	}

	cfg := pipeline.ConfigFromEnv()
	if opts.PipelineConfig != nil {
		cfg = *opts.PipelineConfig
	}
	cfg.RequestedSymbols = opts.ActiveSymbols

	pf := opts.AcqFilter
	pipe := pipeline.New(client, registry, coord, cfg, pf)

	c := &Client{session: session, registry: registry, coord: coord, pipe: pipe}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pipe.Run(runCtx, func() bool { return session.State() == transport.StateBroken })
		if session.State() == transport.StateBroken {
			coord.MarkBroken()
		}
	}()

	return c, nil
}

// ActiveSymbols returns the last-known set of canonical source names the
// instrument reported, in no particular order.
func (c *Client) ActiveSymbols() []string {
	return c.registry.ActiveSymbols()
}

// SetFilter replaces the acceptance filter, effective from the next
// candidate acquisition.
func (c *Client) SetFilter(f Filter) {
	c.pipe.SetFilter(f)
}

// SetCallback replaces the commit callback, effective from the next commit.
func (c *Client) SetCallback(cb Callback) {
	c.coord.SetCallback(cb)
}

// AccessData blocks until mode's precondition holds against the coordinator,
// then returns a Scope pinning the committed bundle for the duration of the
// read. The caller must call Scope.Release exactly once (defer is
// idiomatic). after is only consulted when mode is Time.
func (c *Client) AccessData(ctx context.Context, mode WaitMode, after time.Duration) (*Scope, error) {
	return c.coord.AccessData(ctx, mode, after)
}

// Close disconnects the session, stops the keep-alive loop and the
// acquisition pipeline, and marks the coordinator closed so any blocked or
// future AccessData call returns SessionClosedError. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.coord.Close()

	if err := c.session.Close(ctx); err != nil {
		logger.Logger().Warn("tekhsi: session close failed", "error", err)
		return err
	}
	return nil
}

// CheckLive reports whether the underlying session is still usable, without
// performing any RPC: nil if Connected, SessionBrokenError or
// SessionClosedError otherwise, or a ConnectionError if never connected.
func (c *Client) CheckLive() error {
	return c.session.CheckLive()
}
