// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/imulink/imulink/pkg/imuwire"
	"github.com/imulink/imulink/pkg/link"
)

// Configurator reads and writes the IMU-configuration register.
type Configurator struct {
	session *Session
}

// NewConfigurator creates a configurator on session.
func NewConfigurator(session *Session) *Configurator {
	return &Configurator{session: session}
}

// Current reads and decodes the configuration register.
func (c *Configurator) Current(ctx context.Context) (imuwire.SensorConfig, error) {
	data, err := c.session.Read(ctx, link.RegIMUConfiguration)
	if err != nil {
		return imuwire.SensorConfig{}, err
	}
	cfg, err := imuwire.DecodeConfig(data)
	if err != nil {
		return imuwire.SensorConfig{}, fmt.Errorf("decode %s: %w", link.RegIMUConfiguration, err)
	}
	return cfg, nil
}

// Configure merges requested enabled flags over the current configuration and
// writes the result once. A non-nil rate is rounded down to a multiple of 20.
// Types absent from requested keep their current state.
func (c *Configurator) Configure(ctx context.Context, requested map[imuwire.SensorType]bool, rate *uint16) (imuwire.SensorConfig, error) {
	current, err := c.Current(ctx)
	if err != nil {
		return imuwire.SensorConfig{}, err
	}
	merged := current.Merge(requested, rate)
	if err := c.write(ctx, merged); err != nil {
		return imuwire.SensorConfig{}, err
	}
	return merged, nil
}

// SetRate changes the sample rate of the enabled sensors.
func (c *Configurator) SetRate(ctx context.Context, rate uint16) (imuwire.SensorConfig, error) {
	return c.Configure(ctx, nil, &rate)
}

// Enable turns the given sensors on, leaving the others unchanged.
func (c *Configurator) Enable(ctx context.Context, types ...imuwire.SensorType) (imuwire.SensorConfig, error) {
	requested := make(map[imuwire.SensorType]bool, len(types))
	for _, t := range types {
		requested[t] = true
	}
	return c.Configure(ctx, requested, nil)
}

// DisableAll writes the empty configuration.
func (c *Configurator) DisableAll(ctx context.Context) error {
	current, err := c.Current(ctx)
	if err != nil {
		return err
	}
	return c.write(ctx, current.DisableAll())
}

func (c *Configurator) write(ctx context.Context, cfg imuwire.SensorConfig) error {
	data := imuwire.EncodeConfig(cfg)
	log.WithField("enabled", imuwire.FormatSensorSet(cfg.Enabled())).Debugf("writing %s configuration % X", cfg.Variant, data)
	return c.session.Write(ctx, link.RegIMUConfiguration, data)
}
