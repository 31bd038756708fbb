// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when a register payload is too short or
// otherwise inconsistent with its declared layout.
var ErrMalformedFrame = errors.New("malformed frame")

// Sample is one decoded sensor reading.
type Sample struct {
	Type      SensorType
	Timestamp uint32 // device milliseconds, wraps at 2^32

	// Raw holds the int16 components in wire order. Unused for Euler.
	Raw [4]int16

	// Exactly one payload is meaningful, depending on Type.
	Vector     Vector3
	Quaternion Quat
	Angles     Angles
}

// Components returns the decoded payload as a flat slice in x, y, z(, w) order.
func (s Sample) Components() []float64 {
	switch s.Type {
	case Quaternion:
		return []float64{s.Quaternion.X, s.Quaternion.Y, s.Quaternion.Z, s.Quaternion.W}
	case RotationRate, Euler:
		return []float64{s.Angles.X, s.Angles.Y, s.Angles.Z}
	default:
		return []float64{s.Vector.X, s.Vector.Y, s.Vector.Z}
	}
}

// field describes one wire type's slot in the telemetry payload.
type field struct {
	typ    SensorType
	width  int
	decode func(s *Sample, data []byte)
}

// telemetryLayout is walked in bit order for every frame.
var telemetryLayout = [NumWireSensorTypes]field{
	{Acceleration, vectorWidth, decodeVector},
	{Gravity, vectorWidth, decodeVector},
	{LinearAcceleration, vectorWidth, decodeVector},
	{RotationRate, vectorWidth, decodeRotationRate},
	{Magnetometer, vectorWidth, decodeVector},
	{Quaternion, quaternionWidth, decodeQuaternion},
}

func readInt16s(raw []int16, data []byte) {
	for i := range raw {
		raw[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
}

// decodeVector remaps device axes (x, y, z) to (-x, -z, y).
func decodeVector(s *Sample, data []byte) {
	readInt16s(s.Raw[:3], data)
	k := s.Type.Scalar()
	x, y, z := float64(s.Raw[0]), float64(s.Raw[1]), float64(s.Raw[2])
	s.Vector = Vector3{X: -x * k, Y: -z * k, Z: y * k}
}

// decodeRotationRate converts degrees to radians and remaps to (-x, z, -y).
func decodeRotationRate(s *Sample, data []byte) {
	readInt16s(s.Raw[:3], data)
	k := s.Type.Scalar()
	x := degToRad(float64(s.Raw[0]) * k)
	y := degToRad(float64(s.Raw[1]) * k)
	z := degToRad(float64(s.Raw[2]) * k)
	s.Angles = Angles{X: -x, Y: z, Z: -y, Order: OrderYXZ}
}

// decodeQuaternion reads [w, x, y, z] and remaps to (x, z, -y, w).
func decodeQuaternion(s *Sample, data []byte) {
	readInt16s(s.Raw[:4], data)
	k := s.Type.Scalar()
	w := float64(s.Raw[0]) * k
	x := float64(s.Raw[1]) * k
	y := float64(s.Raw[2]) * k
	z := float64(s.Raw[3]) * k
	s.Quaternion = Quat{X: x, Y: z, Z: -y, W: w}
}

// TelemetryLength returns the frame length implied by a presence bitmask.
func TelemetryLength(mask uint8) int {
	n := TelemetryHeaderSize
	for _, f := range telemetryLayout {
		if mask&f.typ.Bit() != 0 {
			n += f.width
		}
	}
	return n
}

// DecodeTelemetry decodes an IMU-data notification into samples, in bit
// order. Every decoded quaternion is followed by a derived Euler sample with
// the same timestamp. The frame is length-checked against its bitmask before
// any payload byte is read.
func DecodeTelemetry(frame []byte) ([]Sample, error) {
	if len(frame) < TelemetryHeaderSize {
		return nil, fmt.Errorf("%w: telemetry frame is %d bytes (header needs %d)",
			ErrMalformedFrame, len(frame), TelemetryHeaderSize)
	}
	mask := frame[0]
	if want := TelemetryLength(mask); len(frame) < want {
		return nil, fmt.Errorf("%w: telemetry mask 0x%02X needs %d bytes, got %d",
			ErrMalformedFrame, mask, want, len(frame))
	}
	timestamp := binary.LittleEndian.Uint32(frame[1:5])

	samples := make([]Sample, 0, NumWireSensorTypes+1)
	offset := TelemetryHeaderSize
	for _, f := range telemetryLayout {
		if mask&f.typ.Bit() == 0 {
			continue
		}
		s := Sample{Type: f.typ, Timestamp: timestamp}
		f.decode(&s, frame[offset:offset+f.width])
		offset += f.width
		samples = append(samples, s)

		if f.typ == Quaternion {
			samples = append(samples, Sample{
				Type:      Euler,
				Timestamp: timestamp,
				Angles:    s.Quaternion.ToEuler(),
			})
		}
	}
	return samples, nil
}
