// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/link"
)

// ErrNoValue is returned when reading a register the capture never carried.
var ErrNoValue = errors.New("no captured value")

// Player is a read-only link.Transport backed by a capture. Subscribed
// handlers receive the captured notifications when Play runs; reads return
// the most recently replayed value. Writes are accepted and discarded.
type Player struct {
	r *Reader

	mu       sync.Mutex
	open     bool
	handlers map[link.Register]link.NotifyHandler
	last     map[link.Register][]byte
	played   int
	skipped  int
}

// NewPlayer replays records from r.
func NewPlayer(r *Reader) *Player {
	return &Player{
		r:        r,
		handlers: make(map[link.Register]link.NotifyHandler),
		last:     make(map[link.Register][]byte),
	}
}

// Play delivers every remaining record to its subscriber. A speed of 1
// reproduces the captured timing, 2 plays twice as fast, and 0 or less plays
// without pauses. Records on unknown registers are skipped.
func (p *Player) Play(ctx context.Context, speed float64) error {
	var prev int64
	for {
		rec, err := p.r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if speed > 0 && prev != 0 && rec.Time > prev {
			wait := time.Duration(float64(rec.Time-prev) / speed)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		prev = rec.Time

		reg, err := link.ParseRegister(rec.Register)
		if err != nil {
			log.Debugf("skipping capture record: %v", err)
			p.count(false)
			continue
		}
		p.deliver(reg, rec.Data)
	}
}

func (p *Player) count(played bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if played {
		p.played++
	} else {
		p.skipped++
	}
}

func (p *Player) deliver(reg link.Register, data []byte) {
	p.mu.Lock()
	p.last[reg] = data
	fn := p.handlers[reg]
	open := p.open
	p.played++
	p.mu.Unlock()
	if open && fn != nil {
		fn(data)
	}
}

// Counts returns how many records were delivered and skipped.
func (p *Player) Counts() (played, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played, p.skipped
}

// Open implements link.Transport.
func (p *Player) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true
	return nil
}

// Has implements link.Transport. A capture stands in for a device with every
// register.
func (p *Player) Has(reg link.Register) bool {
	return reg < link.NumRegisters
}

// Read implements link.Transport.
func (p *Player) Read(ctx context.Context, reg link.Register) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.last[reg]
	if !ok {
		return nil, fmt.Errorf("%s: %w", reg, ErrNoValue)
	}
	return data, nil
}

// Write implements link.Transport.
func (p *Player) Write(ctx context.Context, reg link.Register, data []byte) error {
	log.WithField("register", reg).Debugf("replay: discarding write % X", data)
	return nil
}

// Subscribe implements link.Transport.
func (p *Player) Subscribe(ctx context.Context, reg link.Register, fn link.NotifyHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[reg] = fn
	return nil
}

// OnDisconnect implements link.Transport. A capture never drops.
func (p *Player) OnDisconnect(fn func(err error)) {}

// Close implements link.Transport.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	p.handlers = make(map[link.Register]link.NotifyHandler)
	return nil
}

// Name implements link.Transport.
func (p *Player) Name() string {
	return "replay"
}
