// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/link"
)

// DefaultRequestTimeout bounds a single bridge request.
const DefaultRequestTimeout = 5 * time.Second

// Options configures a bridge Transport.
type Options struct {
	Dial Dialer
	// Name describes the underlying connection, e.g. "Serial: /dev/ttyACM0".
	Name string
	// Device is the address the dongle should connect to. Empty selects the
	// first module advertising the service.
	Device string
	// RequestTimeout bounds each request; zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Transport implements link.Transport over a bridge dongle.
type Transport struct {
	opts Options

	mu       sync.Mutex
	conn     Conn
	done     chan struct{}
	seq      uint32
	pending  map[uint32]chan *Message
	handlers map[link.Register]link.NotifyHandler
	present  map[link.Register]bool
	onLost   func(error)

	writeMu sync.Mutex
}

// New creates a bridge transport. Nothing is dialed until Open.
func New(opts Options) *Transport {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Transport{
		opts:     opts,
		pending:  make(map[uint32]chan *Message),
		handlers: make(map[link.Register]link.NotifyHandler),
		present:  make(map[link.Register]bool),
	}
}

// Name implements link.Transport.
func (t *Transport) Name() string {
	if t.opts.Device != "" {
		return fmt.Sprintf("%s -> %s", t.opts.Name, t.opts.Device)
	}
	return t.opts.Name
}

// Open dials the dongle and asks it to connect to the module.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := t.opts.Dial(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.pending = make(map[uint32]chan *Message)
	t.handlers = make(map[link.Register]link.NotifyHandler)
	t.present = make(map[link.Register]bool)
	t.mu.Unlock()

	go t.readLoop(conn, done)

	resp, err := t.request(ctx, &Message{Op: OpOpen, Data: []byte(t.opts.Device)})
	if err != nil {
		t.Close()
		return err
	}

	t.mu.Lock()
	for _, id := range resp.Data {
		t.present[link.Register(id)] = true
	}
	t.mu.Unlock()

	if err := link.CheckRequired(t.Has); err != nil {
		t.Close()
		return err
	}
	log.WithField("link", t.Name()).Debugf("bridge opened, %d registers", len(resp.Data))
	return nil
}

// Has implements link.Transport.
func (t *Transport) Has(reg link.Register) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.present[reg]
}

// Read implements link.Transport.
func (t *Transport) Read(ctx context.Context, reg link.Register) ([]byte, error) {
	resp, err := t.request(ctx, &Message{Op: OpRead, Register: reg})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write implements link.Transport.
func (t *Transport) Write(ctx context.Context, reg link.Register, data []byte) error {
	_, err := t.request(ctx, &Message{Op: OpWrite, Register: reg, Data: data})
	return err
}

// Subscribe implements link.Transport.
func (t *Transport) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	t.mu.Lock()
	t.handlers[reg] = fn
	t.mu.Unlock()

	if _, err := t.request(ctx, &Message{Op: OpSubscribe, Register: reg}); err != nil {
		t.mu.Lock()
		delete(t.handlers, reg)
		t.mu.Unlock()
		return err
	}
	return nil
}

// OnDisconnect implements link.Transport.
func (t *Transport) OnDisconnect(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = fn
}

// Close implements link.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.conn = nil
	close(t.done)
	t.mu.Unlock()

	if frame, err := EncodeMessage(&Message{Op: OpClose}); err == nil {
		t.writeMu.Lock()
		conn.Write(frame)
		t.writeMu.Unlock()
	}
	return conn.Close()
}

func (t *Transport) request(ctx context.Context, m *Message) (*Message, error) {
	t.mu.Lock()
	conn, done := t.conn, t.done
	if conn == nil {
		t.mu.Unlock()
		return nil, link.ErrClosed
	}
	t.seq++
	m.Seq = t.seq
	ch := make(chan *Message, 1)
	t.pending[m.Seq] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, m.Seq)
		t.mu.Unlock()
	}()

	frame, err := EncodeMessage(m)
	if err != nil {
		return nil, err
	}
	t.writeMu.Lock()
	_, err = conn.Write(frame)
	t.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("bridge %s %s: %w", m.Op, m.Register, err)
	}

	timer := time.NewTimer(t.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Op == OpError {
			return nil, errorFromMessage(m.Op, m.Register, resp)
		}
		return resp, nil
	case <-done:
		return nil, fmt.Errorf("bridge %s %s: %w", m.Op, m.Register, link.ErrClosed)
	case <-timer.C:
		return nil, fmt.Errorf("bridge %s %s: timeout after %v", m.Op, m.Register, t.opts.RequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) readLoop(conn Conn, done chan struct{}) {
	decoder := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.lost(conn, err)
			return
		}
		for _, b := range buf[:n] {
			payload, err := decoder.DecodeByte(b)
			if err != nil {
				log.Debugf("bridge frame error: %v", err)
				continue
			}
			if payload == nil {
				continue
			}
			m, err := ParseMessage(payload)
			if err != nil {
				log.Debugf("bridge message error: %v", err)
				continue
			}
			t.dispatch(conn, m)
		}
	}
}

func (t *Transport) dispatch(conn Conn, m *Message) {
	switch m.Op {
	case OpResponse, OpError:
		t.mu.Lock()
		ch, ok := t.pending[m.Seq]
		t.mu.Unlock()
		if !ok {
			log.Debugf("bridge: unmatched %s seq=%d", m.Op, m.Seq)
			return
		}
		select {
		case ch <- m:
		default:
		}

	case OpNotify:
		t.mu.Lock()
		fn := t.handlers[m.Register]
		t.mu.Unlock()
		if fn != nil {
			fn(m.Data)
		}

	case OpLinkLost:
		reason := string(m.Data)
		if reason == "" {
			reason = "device disconnected"
		}
		t.lost(conn, errors.New(reason))

	default:
		log.Debugf("bridge: ignoring %s", m.Op)
	}
}

// lost tears down conn after an unexpected failure and reports it once.
func (t *Transport) lost(conn Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	close(t.done)
	fn := t.onLost
	t.mu.Unlock()

	conn.Close()
	log.WithField("link", t.Name()).Warnf("bridge link lost: %v", err)
	if fn != nil {
		fn(err)
	}
}
