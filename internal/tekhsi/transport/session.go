// Package transport owns the session lifecycle against the instrument:
// Connect, the keep-alive liveness loop, and the Connected/Broken/Closed
// state machine every other package consults before issuing RPCs.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	tekhsierrors "github.com/tekhsi/tekhsi-go/internal/errors"
	"github.com/tekhsi/tekhsi-go/internal/logger"
	"github.com/tekhsi/tekhsi-go/internal/tekhsi/wire"
)

// State is the session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// DefaultKeepAliveInterval matches the instrument's default session timeout
// margin; three missed beats (MaxKeepAliveFailures) trips the session to Broken.
const DefaultKeepAliveInterval = 5 * time.Second

// MaxKeepAliveFailures is the number of consecutive KeepAlive failures the
// session tolerates before declaring itself broken.
const MaxKeepAliveFailures = 3

// Session manages one client's connection to an instrument: identity,
// liveness, and state. Safe for concurrent use.
type Session struct {
	client wire.Client
	name   string // instrument-facing client identity, e.g. "tekhsi-go-<uuid>"

	keepAliveInterval time.Duration

	mu               sync.Mutex
	state            State
	consecutiveFails int

	cancelKeepAlive context.CancelFunc
	wg              sync.WaitGroup

	log *slog.Logger
}

// New creates a Session bound to client, identified to the instrument by a
// generated UUID-suffixed name. interval <= 0 uses DefaultKeepAliveInterval.
// instrumentURL is carried only for log attribution.
func New(client wire.Client, instrumentURL string, interval time.Duration) *Session {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	name := "tekhsi-go-" + uuid.NewString()
	return &Session{
		client:            client,
		name:              name,
		keepAliveInterval: interval,
		log:               logger.WithSession(logger.Logger(), name, instrumentURL),
	}
}

// Name returns the session's instrument-facing client identity.
func (s *Session) Name() string { return s.name }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the instrument's Connect RPC and, on success, starts the
// keep-alive loop. Calling Connect on an already-connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		return tekhsierrors.NewSessionClosedError()
	}
	s.mu.Unlock()

	reply, err := s.client.Connect(ctx, &wire.ConnectRequest{Name: s.name})
	if err != nil {
		return tekhsierrors.NewConnectionError("connect", err)
	}
	if reply.Status != wire.ConnectStatusSuccess {
		return tekhsierrors.NewConnectionError("connect", fmt.Errorf("instrument refused connect: %s", reply.Status))
	}

	s.mu.Lock()
	s.state = StateConnected
	s.consecutiveFails = 0
	kaCtx, cancel := context.WithCancel(context.Background())
	s.cancelKeepAlive = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.keepAliveLoop(kaCtx)

	s.log.Info("session connected", "name", s.name)
	return nil
}

func (s *Session) keepAliveLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

func (s *Session) beat(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.keepAliveInterval)
	defer cancel()
	_, err := s.client.KeepAlive(callCtx, &wire.ConnectRequest{Name: s.name})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	if err != nil {
		s.consecutiveFails++
		s.log.Warn("keep-alive failed", "name", s.name, "consecutive_fails", s.consecutiveFails, "err", err)
		if s.consecutiveFails >= MaxKeepAliveFailures {
			s.state = StateBroken
			s.log.Error("session broken: keep-alive exhausted retries", "name", s.name)
		}
		return
	}
	s.consecutiveFails = 0
}

// CheckLive returns an error if the session is not usable for a new RPC:
// SessionClosedError if closed, SessionBrokenError if the keep-alive loop has
// given up, or nil if connected.
func (s *Session) CheckLive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return tekhsierrors.NewSessionClosedError()
	case StateBroken:
		return tekhsierrors.NewSessionBrokenError()
	case StateConnected:
		return nil
	default:
		return tekhsierrors.NewConnectionError("check_live", fmt.Errorf("session never connected"))
	}
}

// Close stops the keep-alive loop and disconnects from the instrument. Safe
// to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	wasConnected := s.state == StateConnected
	s.state = StateClosed
	cancel := s.cancelKeepAlive
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if !wasConnected {
		return nil
	}
	if _, err := s.client.Disconnect(ctx, &wire.ConnectRequest{Name: s.name}); err != nil {
		return tekhsierrors.NewConnectionError("disconnect", err)
	}
	return nil
}
