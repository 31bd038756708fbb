// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import (
	"fmt"
	"strings"
)

// FormatSample formats a decoded sample into a single human-readable line
func FormatSample(s Sample) string {
	ts := FormatDeviceTime(s.Timestamp)
	switch s.Type {
	case Quaternion:
		q := s.Quaternion
		return fmt.Sprintf("[%s] %-18s x=%+.4f y=%+.4f z=%+.4f w=%+.4f\n", ts, s.Type, q.X, q.Y, q.Z, q.W)
	case RotationRate, Euler:
		a := s.Angles
		return fmt.Sprintf("[%s] %-18s x=%+.4f y=%+.4f z=%+.4f rad (%s)\n", ts, s.Type, a.X, a.Y, a.Z, a.Order)
	default:
		v := s.Vector
		return fmt.Sprintf("[%s] %-18s x=%+.3f y=%+.3f z=%+.3f\n", ts, s.Type, v.X, v.Y, v.Z)
	}
}

// FormatCalibration formats calibration scores
func FormatCalibration(c CalibrationState) string {
	result := fmt.Sprintf("  System: %d/3, Gyroscope: %d/3, Accelerometer: %d/3, Magnetometer: %d/3",
		c.System, c.Gyroscope, c.Accelerometer, c.Magnetometer)
	if c.FullyCalibrated() {
		result += " (fully calibrated)"
	}
	return result + "\n"
}

// FormatConfig formats a sensor configuration record
func FormatConfig(c SensorConfig) string {
	result := fmt.Sprintf("  Variant: %s\n", c.Variant)
	for i, st := range c.Settings {
		state := "off"
		if st.Enabled {
			state = "on"
		}
		result += fmt.Sprintf("    %-18s %-3s rate=%d\n", WireSensorTypes[i], state, st.Rate)
	}
	return result
}

// FormatTransferStatus returns the human-readable name for a transfer status
func FormatTransferStatus(s TransferStatus) string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusError:
		return "ERROR"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// FormatHex formats raw register bytes as a hex dump
func FormatHex(data []byte) string {
	result := "  Payload: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

// FormatDeviceTime converts a device timestamp in milliseconds to h:mm:ss.mmm
func FormatDeviceTime(ms uint32) string {
	millis := ms % 1000
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	return fmt.Sprintf("%d:%02d:%02d.%03d", hours, minutes%60, seconds%60, millis)
}

// FormatSensorSet lists the members of a sensor set
func FormatSensorSet(s SensorSet) string {
	types := s.Types()
	if len(types) == 0 {
		return "(none)"
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
