// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge tunnels register operations to the IMU module through a
// radio dongle attached over serial or WebSocket.
//
// Each message is a CBOR array [op, seq, register, data] carried in a frame:
//
//	START [len:u16 LE] [cbor...] [crc16:u16 BE] END
//
// The length, payload and CRC are byte-stuffed. The CRC is CRC-16-CCITT over
// the unstuffed length and payload bytes.
package bridge

import (
	"encoding/binary"
	"fmt"
)

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits. A file block (128 bytes) plus CBOR overhead must fit.
const (
	MaxPayloadSize = 512
	headerSize     = 2
	crcSize        = 2
	MaxFrameSize   = headerSize + MaxPayloadSize + crcSize
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// CalculateCRC computes the CRC-16-CCITT checksum of data.
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeFrame wraps a CBOR payload in a stuffed, checksummed frame.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	data := make([]byte, headerSize, headerSize+len(payload)+crcSize)
	binary.LittleEndian.PutUint16(data, uint16(len(payload)))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// Decoder states
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC
)

// Decoder reassembles frames from a byte stream.
type Decoder struct {
	state      int
	escapeNext bool
	buffer     []byte
	length     int
}

// NewDecoder creates a frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset returns the decoder to idle, discarding any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.escapeNext = false
	d.buffer = d.buffer[:0]
	d.length = 0
}

// DecodeByte feeds one wire byte. It returns the CBOR payload of a completed
// frame, or nil while the frame is incomplete. Errors reset the decoder.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	if !d.escapeNext {
		switch b {
		case EscByte:
			d.escapeNext = true
			return nil, nil
		case StartByte:
			d.Reset()
			d.state = stateLength
			return nil, nil
		case EndByte:
			return d.finish()
		}
	} else {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < headerSize {
			return nil, nil
		}
		d.length = int(binary.LittleEndian.Uint16(d.buffer))
		if d.length > MaxPayloadSize {
			n := d.length
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", n, MaxPayloadSize)
		}
		if d.length == 0 {
			d.state = stateCRC
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) >= headerSize+d.length {
			d.state = stateCRC
		}
		return nil, nil

	case stateCRC:
		if len(d.buffer) >= headerSize+d.length+crcSize {
			d.Reset()
			return nil, fmt.Errorf("frame overrun: missing END byte")
		}
		d.buffer = append(d.buffer, b)
		return nil, nil
	}

	d.Reset()
	return nil, fmt.Errorf("invalid state: %d", d.state)
}

func (d *Decoder) finish() ([]byte, error) {
	defer d.Reset()
	if d.state != stateCRC || len(d.buffer) != headerSize+d.length+crcSize {
		return nil, fmt.Errorf("unexpected END byte in state %d", d.state)
	}
	body := d.buffer[:headerSize+d.length]
	got := binary.BigEndian.Uint16(d.buffer[headerSize+d.length:])
	if want := CalculateCRC(body); got != want {
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", want, got)
	}
	payload := make([]byte, d.length)
	copy(payload, body[headerSize:])
	return payload, nil
}
