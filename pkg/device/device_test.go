// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/imulink/imulink/pkg/link"
	"github.com/imulink/imulink/pkg/link/linktest"
)

// testOptions keeps reconnects and status waits short.
func testOptions() Options {
	return Options{
		Reconnect: ReconnectPolicy{
			InitialDelay: time.Millisecond,
			MaxDelay:     4 * time.Millisecond,
			MaxAttempts:  3,
		},
		StatusTimeout: time.Second,
	}
}

func newFakeTransport() *linktest.Transport {
	fake := linktest.New()
	fake.Set(link.RegIdentity, []byte("imu-test\x00\x00"))
	fake.Set(link.RegIMUConfiguration, []byte{0x00, 20, 0})
	fake.Set(link.RegFileMaxLength, []byte{0x00, 0x10, 0x00, 0x00}) // 4096
	fake.Set(link.RegBatteryLevel, []byte{87})
	return fake
}

func newConnectedClient(t *testing.T, opts Options, setup func(fake *linktest.Transport)) (*Client, *linktest.Transport) {
	t.Helper()
	fake := newFakeTransport()
	if setup != nil {
		setup(fake)
	}
	c := NewClient(fake, opts)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Session.Disconnect() })
	return c, fake
}

// recorder collects bus events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(bus *Bus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[T Event](r *recorder) []T {
	var out []T
	for _, e := range r.all() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
