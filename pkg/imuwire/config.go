// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import (
	"encoding/binary"
	"fmt"
)

// ConfigVariant identifies the layout of the IMU-configuration register.
type ConfigVariant int

// Configuration record variants
const (
	// ConfigSimple is [mask:u8][rate:u16], one rate shared by all sensors.
	ConfigSimple ConfigVariant = iota
	// ConfigExtended is one u16 rate per wire type; a zero rate means disabled.
	ConfigExtended
)

func (v ConfigVariant) String() string {
	switch v {
	case ConfigSimple:
		return "simple"
	case ConfigExtended:
		return "extended"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// SensorSetting is the configuration of one wire sensor type.
type SensorSetting struct {
	Enabled bool
	Rate    uint16
}

// SensorConfig is the decoded IMU-configuration register.
type SensorConfig struct {
	Variant  ConfigVariant
	Settings [NumWireSensorTypes]SensorSetting
}

// ClampRate rounds rate down to the nearest multiple of RateStep.
func ClampRate(rate uint16) uint16 {
	return rate / RateStep * RateStep
}

// Enabled returns the set of enabled sensor types.
func (c SensorConfig) Enabled() SensorSet {
	var s SensorSet
	for i, st := range c.Settings {
		if st.Enabled {
			s = s.With(WireSensorTypes[i])
		}
	}
	return s
}

// Rate returns the configured rate of t. Derived types report 0.
func (c SensorConfig) Rate(t SensorType) uint16 {
	if !t.IsWire() {
		return 0
	}
	return c.Settings[t].Rate
}

// sharedRate is the rate written by the simple variant.
func (c SensorConfig) sharedRate() uint16 {
	for _, st := range c.Settings {
		if st.Enabled {
			return st.Rate
		}
	}
	return c.Settings[0].Rate
}

// Merge applies requested enabled flags over the current configuration.
// A non-nil rate is clamped and applied: to every sensor in the simple
// variant, and to every enabled sensor in the extended variant. Sensors
// enabled in the extended variant without a rate keep their current rate, or
// fall back to RateStep when they had none.
func (c SensorConfig) Merge(requested map[SensorType]bool, rate *uint16) SensorConfig {
	out := c
	for t, enabled := range requested {
		if !t.IsWire() {
			continue
		}
		out.Settings[t].Enabled = enabled
	}

	switch out.Variant {
	case ConfigSimple:
		shared := out.sharedRate()
		if rate != nil {
			shared = *rate
		}
		shared = ClampRate(shared)
		for i := range out.Settings {
			out.Settings[i].Rate = shared
		}
	default:
		for i := range out.Settings {
			st := &out.Settings[i]
			if !st.Enabled {
				st.Rate = 0
				continue
			}
			if rate != nil {
				st.Rate = *rate
			}
			st.Rate = ClampRate(st.Rate)
			if st.Rate == 0 {
				st.Rate = RateStep
			}
		}
	}
	return out
}

// DisableAll returns the configuration with every sensor disabled.
func (c SensorConfig) DisableAll() SensorConfig {
	off := make(map[SensorType]bool, NumWireSensorTypes)
	for _, t := range WireSensorTypes {
		off[t] = false
	}
	return c.Merge(off, nil)
}

// EncodeConfig serializes the configuration in its own variant.
func EncodeConfig(c SensorConfig) []byte {
	switch c.Variant {
	case ConfigSimple:
		buf := make([]byte, SimpleConfigSize)
		buf[0] = EncodeMask(c.Enabled())
		binary.LittleEndian.PutUint16(buf[1:3], ClampRate(c.sharedRate()))
		return buf
	default:
		buf := make([]byte, ExtendedConfigSize)
		for i, st := range c.Settings {
			var rate uint16
			if st.Enabled {
				rate = ClampRate(st.Rate)
			}
			binary.LittleEndian.PutUint16(buf[i*2:], rate)
		}
		return buf
	}
}

// DecodeConfig parses an IMU-configuration record. The variant is chosen from
// the record length.
func DecodeConfig(data []byte) (SensorConfig, error) {
	switch len(data) {
	case SimpleConfigSize:
		return decodeSimpleConfig(data), nil
	case ExtendedConfigSize:
		return decodeExtendedConfig(data), nil
	}
	return SensorConfig{}, fmt.Errorf("%w: configuration record is %d bytes (want %d or %d)",
		ErrMalformedFrame, len(data), SimpleConfigSize, ExtendedConfigSize)
}

func decodeSimpleConfig(data []byte) SensorConfig {
	mask := data[0]
	if mask == maskResetSentinel {
		mask = 0
	}
	enabled := DecodeMask(mask)
	rate := binary.LittleEndian.Uint16(data[1:3])

	c := SensorConfig{Variant: ConfigSimple}
	for i, t := range WireSensorTypes {
		c.Settings[i] = SensorSetting{Enabled: enabled.Has(t), Rate: rate}
	}
	return c
}

func decodeExtendedConfig(data []byte) SensorConfig {
	c := SensorConfig{Variant: ConfigExtended}
	for i := range c.Settings {
		rate := binary.LittleEndian.Uint16(data[i*2:])
		c.Settings[i] = SensorSetting{Enabled: rate > 0, Rate: rate}
	}
	return c
}
