// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/imuwire"
)

// Telemetry decodes IMU-data notifications and publishes one SampleEvent per
// sample. It keeps the last sample of each type for late readers.
type Telemetry struct {
	bus   *Bus
	stats *statsTracker

	mu     sync.RWMutex
	latest map[imuwire.SensorType]imuwire.Sample
}

// NewTelemetry creates a telemetry decoder publishing on bus.
func NewTelemetry(bus *Bus) *Telemetry {
	return &Telemetry{
		bus:    bus,
		stats:  newStatsTracker(),
		latest: make(map[imuwire.SensorType]imuwire.Sample),
	}
}

// HandleFrame decodes one notification. Malformed frames are dropped.
func (t *Telemetry) HandleFrame(data []byte) {
	samples, err := imuwire.DecodeTelemetry(data)
	t.stats.record(samples, err)
	if err != nil {
		log.Debugf("dropping telemetry frame: %v\n%s", err, imuwire.FormatHex(data))
		return
	}

	t.mu.Lock()
	for _, s := range samples {
		t.latest[s.Type] = s
	}
	t.mu.Unlock()

	for _, s := range samples {
		t.bus.Publish(SampleEvent{Sample: s})
	}
}

// Latest returns the most recent sample of the given type.
func (t *Telemetry) Latest(st imuwire.SensorType) (imuwire.Sample, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.latest[st]
	return s, ok
}

// Statistics returns a snapshot of the frame counters.
func (t *Telemetry) Statistics() Statistics {
	return t.stats.snapshot()
}

// ResetStatistics clears the frame counters.
func (t *Telemetry) ResetStatistics() {
	t.stats.reset()
}
