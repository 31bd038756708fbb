// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

// CalibrationTracker mirrors the device's calibration scores.
type CalibrationTracker struct {
	session *Session
	bus     *Bus

	mu    sync.RWMutex
	state imuwire.CalibrationState
	known bool
	full  bool
}

// NewCalibrationTracker creates a tracker publishing on the session's bus.
func NewCalibrationTracker(session *Session) *CalibrationTracker {
	return &CalibrationTracker{session: session, bus: session.Bus()}
}

// HandleFrame applies one calibration notification. A CalibrationEvent is
// published for every valid frame; a FullyCalibratedEvent only when the
// scores first reach all-3.
func (c *CalibrationTracker) HandleFrame(data []byte) {
	state, err := imuwire.DecodeCalibration(data)
	if err != nil {
		log.Debugf("dropping calibration frame: %v", err)
		return
	}

	c.mu.Lock()
	wasFull := c.full
	c.state = state
	c.known = true
	c.full = state.FullyCalibrated()
	c.mu.Unlock()

	c.bus.Publish(CalibrationEvent{State: state})
	if state.FullyCalibrated() && !wasFull {
		c.bus.Publish(FullyCalibratedEvent{State: state})
	}
}

// State returns the last known scores. ok is false until the first frame.
func (c *CalibrationTracker) State() (state imuwire.CalibrationState, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.known
}

// FullyCalibrated reports whether the last frame was all-3.
func (c *CalibrationTracker) FullyCalibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.full
}

// Refresh reads the calibration register and applies it like a notification.
func (c *CalibrationTracker) Refresh(ctx context.Context) (imuwire.CalibrationState, error) {
	data, err := c.session.Read(ctx, link.RegIMUCalibration)
	if err != nil {
		return imuwire.CalibrationState{}, err
	}
	state, err := imuwire.DecodeCalibration(data)
	if err != nil {
		return imuwire.CalibrationState{}, err
	}
	c.HandleFrame(data)
	return state, nil
}

// Reset forgets the mirrored state so the next all-3 frame fires again.
// Called on link loss: the device's scores are unknown across the gap, so a
// module that stayed fully calibrated reports FullyCalibratedEvent once more
// after reconnecting.
func (c *CalibrationTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = imuwire.CalibrationState{}
	c.known = false
	c.full = false
}
