// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"

	"github.com/imulink/imulink/pkg/imuwire"
)

// Event is published on a Bus. The concrete type identifies the event.
type Event interface {
	isEvent()
}

// SampleEvent carries one decoded sensor sample.
type SampleEvent struct {
	Sample imuwire.Sample
}

// CalibrationEvent is published for every calibration notification.
type CalibrationEvent struct {
	State imuwire.CalibrationState
}

// FullyCalibratedEvent is published once per transition into the all-3 state.
type FullyCalibratedEvent struct {
	State imuwire.CalibrationState
}

// ConnectionEvent reports a session state change.
type ConnectionEvent struct {
	State   State
	Attempt int   // reconnect attempt number while Reconnecting
	Err     error // cause of a link loss or failed reconnect
}

// TransferProgressEvent reports bytes sent after each block write.
type TransferProgressEvent struct {
	Sent     int
	Total    int
	Progress float64
}

// TransferStatusEvent reports a transfer job reaching a new status.
type TransferStatusEvent struct {
	Status    imuwire.TransferStatus
	Abandoned bool
}

// TransferErrorEvent carries the device's error-message text verbatim.
type TransferErrorEvent struct {
	Message string
}

// BatteryEvent reports the battery level in percent.
type BatteryEvent struct {
	Level uint8
}

// InferenceEvent carries a raw inference-result notification.
type InferenceEvent struct {
	Result []byte
}

func (SampleEvent) isEvent()           {}
func (CalibrationEvent) isEvent()      {}
func (FullyCalibratedEvent) isEvent()  {}
func (ConnectionEvent) isEvent()       {}
func (TransferProgressEvent) isEvent() {}
func (TransferStatusEvent) isEvent()   {}
func (TransferErrorEvent) isEvent()    {}
func (BatteryEvent) isEvent()          {}
func (InferenceEvent) isEvent()        {}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

// Bus fans events out to subscribers in publish order. Events from different
// registers may interleave in any order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	order  []int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe adds a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Channel subscribes a buffered channel of the given size. Events are dropped
// when the channel is full so that a slow reader never stalls the link. Call
// the returned function to unsubscribe and close the channel.
func (b *Bus) Channel(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var mu sync.Mutex
	closed := false

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})

	return ch, func() {
		unsub()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}
