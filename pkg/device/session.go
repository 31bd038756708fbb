// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device implements the IMU module client: session lifecycle, sensor
// configuration, telemetry and calibration tracking, and file transfer.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/link"
)

// State is the session lifecycle state.
type State int

// Session states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ReconnectPolicy bounds automatic reconnection after an unexpected link loss.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts of zero disables reconnection.
	MaxAttempts int
	// AttemptTimeout bounds each reconnect attempt; zero means no bound.
	AttemptTimeout time.Duration
}

// DefaultReconnectPolicy waits 1s, 2s, 4s, 8s, 16s between five attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    5,
		AttemptTimeout: 20 * time.Second,
	}
}

// Delay returns the wait before the given attempt (1-based).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Session owns the link to one device. Components register notification
// handlers before Connect; the session subscribes them on every (re)connect.
type Session struct {
	transport link.Transport
	bus       *Bus
	policy    ReconnectPolicy

	// serializes Connect, Disconnect and reconnect attempts
	connectMu sync.Mutex

	mu        sync.RWMutex
	state     State
	handlers  map[link.Register]link.NotifyHandler
	lostHooks []func(error)
	stop      chan struct{}
}

// NewSession creates a session over transport. Events are published on bus.
func NewSession(transport link.Transport, bus *Bus, policy ReconnectPolicy) *Session {
	s := &Session{
		transport: transport,
		bus:       bus,
		policy:    policy,
		handlers:  make(map[link.Register]link.NotifyHandler),
		stop:      make(chan struct{}),
	}
	transport.OnDisconnect(s.onLinkLost)
	return s
}

// Bus returns the session's event bus.
func (s *Session) Bus() *Bus {
	return s.bus
}

// Name describes the underlying link.
func (s *Session) Name() string {
	return s.transport.Name()
}

// Handle routes notifications on reg to fn. It takes effect on the next
// (re)connect.
func (s *Session) Handle(reg link.Register, fn link.NotifyHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[reg] = fn
}

// OnLinkLost registers a hook run once per unexpected link loss, before any
// reconnect attempt.
func (s *Session) OnLinkLost(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lostHooks = append(s.lostHooks, fn)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsConnected reports whether the session is connected.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

func (s *Session) setState(state State, attempt int, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.bus.Publish(ConnectionEvent{State: state, Attempt: attempt, Err: err})
}

// Connect establishes the link. It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.IsConnected() {
		return nil
	}

	s.setState(StateConnecting, 0, nil)
	if err := s.establish(ctx); err != nil {
		s.transport.Close()
		s.setState(StateDisconnected, 0, err)
		return err
	}
	s.setState(StateConnected, 0, nil)
	log.WithField("link", s.transport.Name()).Info("connected")
	return nil
}

// establish opens the transport and subscribes every notifying register the
// device exposes.
func (s *Session) establish(ctx context.Context) error {
	if err := s.transport.Open(ctx); err != nil {
		return err
	}

	for _, reg := range link.NotifyRegisters() {
		if !s.transport.Has(reg) {
			// only optional registers can be absent after a successful Open
			continue
		}
		reg := reg
		err := s.transport.Subscribe(ctx, reg, func(data []byte) {
			s.mu.RLock()
			fn := s.handlers[reg]
			s.mu.RUnlock()
			if fn != nil {
				fn(data)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", reg, err)
		}
	}
	return nil
}

// Disconnect tears the link down and stops any reconnect in progress.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	close(s.stop)
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	err := s.transport.Close()
	if s.State() != StateDisconnected {
		s.setState(StateDisconnected, 0, nil)
		log.WithField("link", s.transport.Name()).Info("disconnected")
	}
	return err
}

func (s *Session) onLinkLost(err error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateReconnecting
	hooks := append([]func(error){}, s.lostHooks...)
	stop := s.stop
	s.mu.Unlock()

	log.WithField("link", s.transport.Name()).Warnf("link lost: %v", err)
	s.bus.Publish(ConnectionEvent{State: StateReconnecting, Err: err})

	lost := fmt.Errorf("%w: %v", ErrDisconnected, err)
	for _, hook := range hooks {
		hook(lost)
	}

	go s.reconnect(stop, err)
}

// reconnect retries with exponential backoff until the policy is exhausted
// or stop is closed by Disconnect.
func (s *Session) reconnect(stop chan struct{}, cause error) {
	lastErr := cause
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		timer := time.NewTimer(s.policy.Delay(attempt))
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}

		ok, err := s.attempt(stop, attempt)
		if ok {
			return
		}
		if err == nil {
			// stopped while waiting for the connect lock
			return
		}
		lastErr = err
		log.WithField("link", s.transport.Name()).Warnf("reconnect attempt %d/%d failed: %v",
			attempt, s.policy.MaxAttempts, err)
	}

	select {
	case <-stop:
		return
	default:
	}
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if s.State() == StateReconnecting {
		s.setState(StateDisconnected, 0, lastErr)
		log.WithField("link", s.transport.Name()).Errorf("giving up after %d reconnect attempts", s.policy.MaxAttempts)
	}
}

func (s *Session) attempt(stop chan struct{}, n int) (bool, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	select {
	case <-stop:
		return false, nil
	default:
	}
	if s.State() != StateReconnecting {
		// an explicit Connect won the race
		return true, nil
	}

	s.bus.Publish(ConnectionEvent{State: StateReconnecting, Attempt: n})

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.policy.AttemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.policy.AttemptTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.establish(ctx); err != nil {
		s.transport.Close()
		return false, err
	}
	s.setState(StateConnected, n, nil)
	log.WithField("link", s.transport.Name()).Infof("reconnected after %d attempt(s)", n)
	return true, nil
}

// Read reads a register.
func (s *Session) Read(ctx context.Context, reg link.Register) ([]byte, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	data, err := s.transport.Read(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reg, err)
	}
	return data, nil
}

// Write writes a register. Failures are returned as *WriteError.
func (s *Session) Write(ctx context.Context, reg link.Register, data []byte) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	if err := s.transport.Write(ctx, reg, data); err != nil {
		return &WriteError{Register: reg, Err: err}
	}
	return nil
}

// Has reports whether the connected device exposes reg.
func (s *Session) Has(reg link.Register) bool {
	return s.transport.Has(reg)
}
