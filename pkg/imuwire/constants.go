// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package imuwire implements the wire formats spoken by the wearable IMU module.
//
// The module exposes independently addressable registers. This package knows
// how the bytes carried by those registers are laid out: the sensor
// configuration record, the bitmask-driven telemetry frame, the calibration
// frame and the file-transfer registers. It performs no I/O.
package imuwire

// SensorType identifies one sensor stream.
type SensorType uint8

// Canonical sensor ordering. The index of a wire type is its bit position in
// the configuration and telemetry bitmasks.
const (
	Acceleration SensorType = iota
	Gravity
	LinearAcceleration
	RotationRate
	Magnetometer
	Quaternion
	// Euler is derived from Quaternion on the host and never appears on the wire.
	Euler
)

// NumWireSensorTypes is the number of sensor types that own a bitmask bit.
const NumWireSensorTypes = 6

// WireSensorTypes lists the sensor types carried on the wire, in bit order.
var WireSensorTypes = [NumWireSensorTypes]SensorType{
	Acceleration,
	Gravity,
	LinearAcceleration,
	RotationRate,
	Magnetometer,
	Quaternion,
}

// Dequantization scalars, fixed point to real units.
const (
	scalarAcceleration       = 1.0 / 100
	scalarGravity            = 1.0 / 100
	scalarLinearAcceleration = 1.0 / 100
	scalarRotationRate       = 1.0 / 16
	scalarMagnetometer       = 1.0 / 16
	scalarQuaternion         = 1.0 / (1 << 14)
)

// Telemetry frame layout
const (
	TelemetryHeaderSize = 5 // mask(1) + timestamp(4)
	vectorWidth         = 6
	quaternionWidth     = 8
)

// Configuration record sizes
const (
	SimpleConfigSize   = 3                      // mask(1) + rate(2)
	ExtendedConfigSize = NumWireSensorTypes * 2 // one u16 rate per wire type
	RateStep           = 20
	// maskResetSentinel is reported by older firmware in the simple record when
	// all sensors are off.
	maskResetSentinel = 0x01
)

// CalibrationFrameSize is the size of an IMU-calibration notification.
const CalibrationFrameSize = 4

// MaxCalibrationScore is the highest calibration confidence the firmware reports.
const MaxCalibrationScore = 3

// File transfer
const (
	BlockSize = 128
)

// FileType values for the file-transfer-type register.
type FileType uint8

// File type values
const (
	FileTypeModel FileType = 0x00
)

// TransferCommand values for the file-command register.
type TransferCommand uint8

// Transfer command values
const (
	CommandStart  TransferCommand = 0x00
	CommandCancel TransferCommand = 0x01
)

// TransferStatus values reported by the file-status register.
type TransferStatus uint8

// Transfer status values. StatusIdle is host-side only.
const (
	StatusSuccess    TransferStatus = 0x00
	StatusError      TransferStatus = 0x01
	StatusInProgress TransferStatus = 0x02
	StatusIdle       TransferStatus = 0xFF
)

// IsTerminal reports whether the status ends a transfer job.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// InferenceType values for the inference-type register.
type InferenceType uint8

// Inference type values
const (
	InferenceTypeClassification InferenceType = 0x00
	InferenceTypeRegression     InferenceType = 0x01
)

// Threshold slots of the inference-thresholds register.
const (
	ThresholdLinearAcceleration = 0
	ThresholdRotationRate       = 1
	NumThresholds               = 2
)

// ThresholdIndex maps a threshold name to its slot in the thresholds array.
var ThresholdIndex = map[string]int{
	"linearAcceleration": ThresholdLinearAcceleration,
	"rotationRate":       ThresholdRotationRate,
}
