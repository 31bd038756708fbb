// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package imuwire

// crcPolynomial is the reflected IEEE 802.3 polynomial.
const crcPolynomial = 0xEDB88320

// CRC32 computes the checksum the device uses to verify uploaded files.
// The lookup table is built once by NewCRC32 and never modified, so a CRC32
// may be shared between goroutines.
type CRC32 struct {
	table [256]uint32
}

// NewCRC32 builds the byte-at-a-time lookup table.
func NewCRC32() *CRC32 {
	c := &CRC32{}
	for i := range c.table {
		crc := uint32(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
		c.table[i] = crc
	}
	return c
}

// Update continues a checksum from seed over data. A seed of 0 starts a new checksum.
func (c *CRC32) Update(seed uint32, data []byte) uint32 {
	crc := ^seed
	for _, b := range data {
		crc = c.table[byte(crc)^b] ^ (crc >> 8)
	}
	return ^crc
}

// Checksum computes the CRC32 of data with seed 0.
func (c *CRC32) Checksum(data []byte) uint32 {
	return c.Update(0, data)
}

var defaultCRC = NewCRC32()

// CalculateCRC32 computes the CRC32 of data using a shared read-only table.
func CalculateCRC32(data []byte) uint32 {
	return defaultCRC.Checksum(data)
}
