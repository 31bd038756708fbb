// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

// Options configures a Client.
type Options struct {
	Reconnect     ReconnectPolicy
	StatusTimeout time.Duration
}

// DefaultOptions returns the default reconnect policy and status timeout.
func DefaultOptions() Options {
	return Options{
		Reconnect:     DefaultReconnectPolicy(),
		StatusTimeout: DefaultStatusTimeout,
	}
}

// Client wires every component to one session.
type Client struct {
	Session     *Session
	Bus         *Bus
	Config      *Configurator
	Calibration *CalibrationTracker
	Telemetry   *Telemetry
	Transfer    *Transfer

	mu      sync.RWMutex
	battery uint8
	hasBatt bool
}

// NewClient creates a client over transport. Nothing is opened until Connect.
func NewClient(transport link.Transport, opts Options) *Client {
	bus := NewBus()
	session := NewSession(transport, bus, opts.Reconnect)
	c := &Client{
		Session:     session,
		Bus:         bus,
		Config:      NewConfigurator(session),
		Calibration: NewCalibrationTracker(session),
		Telemetry:   NewTelemetry(bus),
		Transfer:    NewTransfer(session, opts.StatusTimeout),
	}

	session.Handle(link.RegIMUData, c.Telemetry.HandleFrame)
	session.Handle(link.RegIMUCalibration, c.Calibration.HandleFrame)
	session.Handle(link.RegFileStatus, c.Transfer.HandleStatus)
	session.Handle(link.RegFileErrorMessage, c.Transfer.HandleErrorMessage)
	session.Handle(link.RegBatteryLevel, c.handleBattery)
	session.Handle(link.RegInferenceResult, c.handleInference)

	session.OnLinkLost(func(err error) {
		c.Transfer.HandleLinkLost(err)
		c.Calibration.Reset()
	})
	return c
}

// Connect connects the session. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	return c.Session.Connect(ctx)
}

// IsConnected reports whether the session is connected.
func (c *Client) IsConnected() bool {
	return c.Session.IsConnected()
}

// Close disables every sensor, best effort, then disconnects.
func (c *Client) Close(ctx context.Context) error {
	if c.Session.IsConnected() {
		if err := c.Config.DisableAll(ctx); err != nil {
			log.Warnf("disabling sensors on close: %v", err)
		}
	}
	return c.Session.Disconnect()
}

// Configure merges the requested sensor flags and rate into the device
// configuration.
func (c *Client) Configure(ctx context.Context, requested map[imuwire.SensorType]bool, rate *uint16) (imuwire.SensorConfig, error) {
	return c.Config.Configure(ctx, requested, rate)
}

// UploadModel configures and transfers an inference model.
func (c *Client) UploadModel(ctx context.Context, cfg ModelConfig, model []byte) error {
	return c.Transfer.UploadModel(ctx, cfg, model)
}

// Identity reads the identity register as text.
func (c *Client) Identity(ctx context.Context) (string, error) {
	data, err := c.Session.Read(ctx, link.RegIdentity)
	if err != nil {
		return "", err
	}
	return imuwire.DecodeString(data), nil
}

// Battery reads the battery level in percent.
func (c *Client) Battery(ctx context.Context) (uint8, error) {
	data, err := c.Session.Read(ctx, link.RegBatteryLevel)
	if err != nil {
		return 0, err
	}
	level, err := imuwire.DecodeBatteryLevel(data)
	if err != nil {
		return 0, err
	}
	c.setBattery(level)
	return level, nil
}

// LastBattery returns the most recent battery level seen.
func (c *Client) LastBattery() (uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.battery, c.hasBatt
}

func (c *Client) setBattery(level uint8) {
	c.mu.Lock()
	c.battery = level
	c.hasBatt = true
	c.mu.Unlock()
}

func (c *Client) handleBattery(data []byte) {
	level, err := imuwire.DecodeBatteryLevel(data)
	if err != nil {
		log.Debugf("dropping battery notification: %v", err)
		return
	}
	c.setBattery(level)
	c.Bus.Publish(BatteryEvent{Level: level})
}

func (c *Client) handleInference(data []byte) {
	c.Bus.Publish(InferenceEvent{Result: data})
}

// SetInferenceEnabled turns on-device inference on or off.
func (c *Client) SetInferenceEnabled(ctx context.Context, enabled bool) error {
	if err := c.requireInference(); err != nil {
		return err
	}
	var v byte
	if enabled {
		v = 1
	}
	return c.Session.Write(ctx, link.RegInferenceEnabled, []byte{v})
}

// MakeInference triggers a single inference; the result arrives as an
// InferenceEvent.
func (c *Client) MakeInference(ctx context.Context) error {
	if err := c.requireInference(); err != nil {
		return err
	}
	return c.Session.Write(ctx, link.RegMakeInference, []byte{1})
}

func (c *Client) requireInference() error {
	if !c.Session.IsConnected() {
		return ErrNotConnected
	}
	if !c.Session.Has(link.RegInferenceEnabled) {
		return fmt.Errorf("inference: %w", ErrUnsupported)
	}
	return nil
}
