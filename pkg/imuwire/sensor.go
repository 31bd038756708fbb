// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import (
	"fmt"
	"math"
)

var sensorNames = [...]string{
	Acceleration:       "acceleration",
	Gravity:            "gravity",
	LinearAcceleration: "linearAcceleration",
	RotationRate:       "rotationRate",
	Magnetometer:       "magnetometer",
	Quaternion:         "quaternion",
	Euler:              "euler",
}

// String returns the sensor type's canonical name.
func (t SensorType) String() string {
	if int(t) < len(sensorNames) {
		return sensorNames[t]
	}
	return fmt.Sprintf("sensor(%d)", uint8(t))
}

// IsWire reports whether the type owns a bit in the wire bitmask.
func (t SensorType) IsWire() bool {
	return t < NumWireSensorTypes
}

// Bit returns the type's bitmask flag, or 0 for derived types.
func (t SensorType) Bit() uint8 {
	if !t.IsWire() {
		return 0
	}
	return 1 << t
}

// Scalar returns the dequantization factor for the type's raw components.
func (t SensorType) Scalar() float64 {
	switch t {
	case Acceleration:
		return scalarAcceleration
	case Gravity:
		return scalarGravity
	case LinearAcceleration:
		return scalarLinearAcceleration
	case RotationRate:
		return scalarRotationRate
	case Magnetometer:
		return scalarMagnetometer
	case Quaternion:
		return scalarQuaternion
	}
	return 1
}

// ParseSensorType resolves a canonical sensor name.
func ParseSensorType(name string) (SensorType, error) {
	for i, n := range sensorNames {
		if n == name {
			return SensorType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor type %q", name)
}

// SensorSet is a set of wire sensor types, stored as the wire bitmask.
type SensorSet uint8

// NewSensorSet builds a set from the given types. Derived types are ignored.
func NewSensorSet(types ...SensorType) SensorSet {
	var s SensorSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// Has reports whether t is in the set.
func (s SensorSet) Has(t SensorType) bool {
	return t.IsWire() && uint8(s)&t.Bit() != 0
}

// With returns the set with t added.
func (s SensorSet) With(t SensorType) SensorSet {
	return SensorSet(uint8(s) | t.Bit())
}

// Without returns the set with t removed.
func (s SensorSet) Without(t SensorType) SensorSet {
	return SensorSet(uint8(s) &^ t.Bit())
}

// Types returns the members in bit order.
func (s SensorSet) Types() []SensorType {
	types := make([]SensorType, 0, NumWireSensorTypes)
	for _, t := range WireSensorTypes {
		if s.Has(t) {
			types = append(types, t)
		}
	}
	return types
}

// EncodeMask returns the wire bitmask for the set.
func EncodeMask(s SensorSet) uint8 {
	var mask uint8
	for _, t := range WireSensorTypes {
		if s.Has(t) {
			mask |= t.Bit()
		}
	}
	return mask
}

// DecodeMask returns the set of wire types flagged in mask. Bits above the
// last wire type are ignored.
func DecodeMask(mask uint8) SensorSet {
	var s SensorSet
	for _, t := range WireSensorTypes {
		if mask&t.Bit() != 0 {
			s = s.With(t)
		}
	}
	return s
}

// Vector3 is a remapped, dequantized three-axis reading.
type Vector3 struct {
	X, Y, Z float64
}

// Quat is a remapped, dequantized orientation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// EulerOrder names the axis order of an Angles value.
type EulerOrder string

// OrderYXZ is the rotation order used for every angle payload.
const OrderYXZ EulerOrder = "YXZ"

// Angles is an orientation or angular-rate triple in radians.
type Angles struct {
	X, Y, Z float64
	Order   EulerOrder
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ToEuler decomposes the quaternion into YXZ-ordered angles.
func (q Quat) ToEuler() Angles {
	x, y, z, w := q.X, q.Y, q.Z, q.W

	// rotation matrix terms
	m11 := 1 - 2*(y*y+z*z)
	m13 := 2 * (x*z + y*w)
	m21 := 2 * (x*y + z*w)
	m22 := 1 - 2*(x*x+z*z)
	m23 := 2 * (y*z - x*w)
	m31 := 2 * (x*z - y*w)
	m33 := 1 - 2*(x*x+y*y)

	a := Angles{Order: OrderYXZ}
	a.X = math.Asin(-clamp(m23, -1, 1))
	if math.Abs(m23) < 0.9999999 {
		a.Y = math.Atan2(m13, m33)
		a.Z = math.Atan2(m21, m22)
	} else {
		a.Y = math.Atan2(-m31, m11)
		a.Z = 0
	}
	return a
}
