// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linktest provides an in-memory link.Transport for host-side tests.
package linktest

import (
	"context"
	"sync"

	"github.com/imulink/imulink/pkg/link"
)

// WriteRecord is one logged register write.
type WriteRecord struct {
	Register link.Register
	Data     []byte
}

// Transport is a fake register transport. Register values live in memory;
// writes are logged and stored as the register's new value.
type Transport struct {
	mu          sync.Mutex
	values      map[link.Register][]byte
	missing     map[link.Register]bool
	handlers    map[link.Register]link.NotifyHandler
	readErrs    map[link.Register]error
	writeErrs   map[link.Register]error
	openErrs    []error
	writes      []WriteRecord
	onLost      func(error)
	open        bool
	opens       int
	writeHook   func(reg link.Register, data []byte)
	closedCount int
}

// New returns a fake transport exposing every register in the catalog.
func New() *Transport {
	return &Transport{
		values:    make(map[link.Register][]byte),
		missing:   make(map[link.Register]bool),
		handlers:  make(map[link.Register]link.NotifyHandler),
		readErrs:  make(map[link.Register]error),
		writeErrs: make(map[link.Register]error),
	}
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Set stores a register value returned by later reads.
func (t *Transport) Set(reg link.Register, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[reg] = clone(data)
}

// Value returns the current stored value of reg.
func (t *Transport) Value(reg link.Register) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return clone(t.values[reg])
}

// Remove makes the device lack reg.
func (t *Transport) Remove(reg link.Register) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.missing[reg] = true
}

// FailRead makes reads of reg fail with err. A nil err clears the failure.
func (t *Transport) FailRead(reg link.Register, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErrs[reg] = err
}

// FailWrite makes writes to reg fail with err. A nil err clears the failure.
func (t *Transport) FailWrite(reg link.Register, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErrs[reg] = err
}

// FailOpen queues errors returned by successive Open calls.
func (t *Transport) FailOpen(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErrs = append(t.openErrs, errs...)
}

// OnWrite installs a hook run after every successful write, outside the
// transport's lock. Tests use it to answer writes with notifications.
func (t *Transport) OnWrite(fn func(reg link.Register, data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeHook = fn
}

// Writes returns a copy of the write log.
func (t *Transport) Writes() []WriteRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WriteRecord, len(t.writes))
	for i, w := range t.writes {
		out[i] = WriteRecord{Register: w.Register, Data: clone(w.Data)}
	}
	return out
}

// WritesTo returns the logged writes to reg, in order.
func (t *Transport) WritesTo(reg link.Register) [][]byte {
	var out [][]byte
	for _, w := range t.Writes() {
		if w.Register == reg {
			out = append(out, w.Data)
		}
	}
	return out
}

// ResetWrites clears the write log.
func (t *Transport) ResetWrites() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = nil
}

// Opens returns how many times Open succeeded.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// Closes returns how many times Close was called.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closedCount
}

// Subscribed reports whether a handler is installed for reg.
func (t *Transport) Subscribed(reg link.Register) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handlers[reg]
	return ok
}

// Notify delivers a notification on reg to its handler, if any. It returns
// false when nothing is subscribed.
func (t *Transport) Notify(reg link.Register, data []byte) bool {
	t.mu.Lock()
	fn, ok := t.handlers[reg]
	if ok && t.open {
		t.values[reg] = clone(data)
	}
	open := t.open
	t.mu.Unlock()
	if !ok || !open {
		return false
	}
	fn(clone(data))
	return true
}

// Drop simulates an unexpected link loss.
func (t *Transport) Drop(err error) {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	t.handlers = make(map[link.Register]link.NotifyHandler)
	fn := t.onLost
	t.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Open implements link.Transport.
func (t *Transport) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.openErrs) > 0 {
		err := t.openErrs[0]
		t.openErrs = t.openErrs[1:]
		if err != nil {
			return err
		}
	}
	if err := link.CheckRequired(t.hasLocked); err != nil {
		return err
	}
	t.open = true
	t.opens++
	return nil
}

func (t *Transport) hasLocked(reg link.Register) bool {
	return !t.missing[reg]
}

// Has implements link.Transport.
func (t *Transport) Has(reg link.Register) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasLocked(reg)
}

func (t *Transport) check(reg link.Register) error {
	if !t.open {
		return link.ErrClosed
	}
	if t.missing[reg] {
		return &link.MissingRegisterError{Register: reg}
	}
	return nil
}

// Read implements link.Transport.
func (t *Transport) Read(ctx context.Context, reg link.Register) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(reg); err != nil {
		return nil, err
	}
	if err := t.readErrs[reg]; err != nil {
		return nil, err
	}
	return clone(t.values[reg]), nil
}

// Write implements link.Transport.
func (t *Transport) Write(ctx context.Context, reg link.Register, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if err := t.check(reg); err != nil {
		t.mu.Unlock()
		return err
	}
	if err := t.writeErrs[reg]; err != nil {
		t.mu.Unlock()
		return err
	}
	t.writes = append(t.writes, WriteRecord{Register: reg, Data: clone(data)})
	t.values[reg] = clone(data)
	hook := t.writeHook
	t.mu.Unlock()

	if hook != nil {
		hook(reg, clone(data))
	}
	return nil
}

// Subscribe implements link.Transport.
func (t *Transport) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(reg); err != nil {
		return err
	}
	t.handlers[reg] = fn
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
	defer t.mu.Unlock()
	t.open = false
	t.handlers = make(map[link.Register]link.NotifyHandler)
	t.closedCount++
	return nil
}

// Name implements link.Transport.
func (t *Transport) Name() string {
	return "fake"
}
