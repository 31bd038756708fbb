// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// File-transfer and inference register codecs. Multi-byte values are
// little-endian.

// EncodeFileLength encodes the file-length register (i32).
func EncodeFileLength(n int) ([]byte, error) {
	if n < 0 || n > math.MaxInt32 {
		return nil, fmt.Errorf("file length %d out of range", n)
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(int32(n)))
	return buf, nil
}

// EncodeChecksum encodes the file-checksum register (u32).
func EncodeChecksum(crc uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, crc)
	return buf
}

// DecodeMaxFileLength parses the file-max-length register. Firmware reports a
// u32; shorter values are widened.
func DecodeMaxFileLength(data []byte) (int, error) {
	switch len(data) {
	case 0:
		return 0, fmt.Errorf("%w: empty max file length", ErrMalformedFrame)
	case 1:
		return int(data[0]), nil
	case 2, 3:
		return int(binary.LittleEndian.Uint16(data)), nil
	}
	return int(binary.LittleEndian.Uint32(data)), nil
}

// DecodeTransferStatus parses the file-status register.
func DecodeTransferStatus(data []byte) (TransferStatus, error) {
	if len(data) < 1 {
		return StatusIdle, fmt.Errorf("%w: empty transfer status", ErrMalformedFrame)
	}
	s := TransferStatus(data[0])
	switch s {
	case StatusSuccess, StatusError, StatusInProgress:
		return s, nil
	}
	return StatusIdle, fmt.Errorf("%w: unknown transfer status 0x%02X", ErrMalformedFrame, data[0])
}

// DecodeErrorMessage returns the file-error-message text exactly as sent,
// with trailing NUL padding removed.
func DecodeErrorMessage(data []byte) string {
	return DecodeString(data)
}

// DecodeString decodes a text register, dropping trailing NUL padding.
func DecodeString(data []byte) string {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return string(data[:end])
}

// EncodeUint16 encodes a u16 register value.
func EncodeUint16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// EncodeThresholds encodes the inference-thresholds register as float32s
// indexed by ThresholdIndex. Unknown names are rejected.
func EncodeThresholds(thresholds map[string]float32) ([]byte, error) {
	var values [NumThresholds]float32
	for name, v := range thresholds {
		idx, ok := ThresholdIndex[name]
		if !ok {
			return nil, fmt.Errorf("unknown threshold %q", name)
		}
		values[idx] = v
	}
	buf := make([]byte, NumThresholds*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf, nil
}

// DecodeBatteryLevel parses the standard battery-level register (percent).
func DecodeBatteryLevel(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: empty battery level", ErrMalformedFrame)
	}
	return data[0], nil
}
