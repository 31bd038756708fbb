// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import "fmt"

// CalibrationState holds the firmware's per-sensor calibration confidence.
type CalibrationState struct {
	System        uint8
	Gyroscope     uint8
	Accelerometer uint8
	Magnetometer  uint8
}

// FullyCalibrated reports whether every score is at its maximum.
func (c CalibrationState) FullyCalibrated() bool {
	return c.System == MaxCalibrationScore &&
		c.Gyroscope == MaxCalibrationScore &&
		c.Accelerometer == MaxCalibrationScore &&
		c.Magnetometer == MaxCalibrationScore
}

// DecodeCalibration parses an IMU-calibration notification.
func DecodeCalibration(frame []byte) (CalibrationState, error) {
	if len(frame) < CalibrationFrameSize {
		return CalibrationState{}, fmt.Errorf("%w: calibration frame is %d bytes (want %d)",
			ErrMalformedFrame, len(frame), CalibrationFrameSize)
	}
	for i, score := range frame[:CalibrationFrameSize] {
		if score > MaxCalibrationScore {
			return CalibrationState{}, fmt.Errorf("%w: calibration score %d at index %d exceeds %d",
				ErrMalformedFrame, score, i, MaxCalibrationScore)
		}
	}
	return CalibrationState{
		System:        frame[0],
		Gyroscope:     frame[1],
		Accelerometer: frame[2],
		Magnetometer:  frame[3],
	}, nil
}

// EncodeCalibration serializes a calibration state. Used by bridges and tests.
func EncodeCalibration(c CalibrationState) []byte {
	return []byte{c.System, c.Gyroscope, c.Accelerometer, c.Magnetometer}
}
