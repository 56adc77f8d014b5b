package zmodem

import "hash/crc32"

// ZMODEM uses two frame checks: CRC-16/XMODEM (polynomial 0x1021,
// initial value 0, no reflection, no final XOR) for ZBIN and ZHEX
// frames, and CRC-32/ISO-HDLC (the IEEE 802.3 polynomial, reflected,
// initial value and final XOR 0xFFFFFFFF) for ZBIN32 frames. Both are
// computed a byte at a time so the streaming readers can fold unescaped
// bytes in as they arrive.

var crc32Table = crc32.MakeTable(crc32.IEEE)

// updcrc16 folds one byte into a running CRC-16/XMODEM value.
func updcrc16(b byte, crc uint16) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

// updcrc32 folds one byte into a running CRC-32 register. Callers seed
// the register with 0xFFFFFFFF and XOR with 0xFFFFFFFF to finish.
func updcrc32(b byte, crc uint32) uint32 {
	return crc32Table[byte(crc)^b] ^ crc>>8
}

// CRC16 returns the CRC-16/XMODEM checksum of data.
// The check value for "123456789" is 0x31C3.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = updcrc16(b, crc)
	}
	return crc
}

// CRC32 returns the CRC-32/ISO-HDLC checksum of data.
// The check value for "123456789" is 0xCBF43926.
func CRC32(data []byte) uint32 {
	crc := ^uint32(0)
	for _, b := range data {
		crc = updcrc32(b, crc)
	}
	return ^crc
}

// CRC16Accumulator computes a CRC-16/XMODEM incrementally. The zero
// value is ready to use.
type CRC16Accumulator struct {
	crc uint16
}

// Reset returns the accumulator to its initial state.
func (a *CRC16Accumulator) Reset() { a.crc = 0 }

// UpdateByte folds a single byte into the checksum.
func (a *CRC16Accumulator) UpdateByte(b byte) { a.crc = updcrc16(b, a.crc) }

// Update folds data into the checksum.
func (a *CRC16Accumulator) Update(data []byte) {
	for _, b := range data {
		a.crc = updcrc16(b, a.crc)
	}
}

// Sum returns the checksum of everything folded in since the last Reset.
func (a *CRC16Accumulator) Sum() uint16 { return a.crc }

// CRC32Accumulator computes a CRC-32/ISO-HDLC incrementally. It stores
// the complement of the running register, so the zero value is ready to
// use and Sum needs no separate finalization step.
type CRC32Accumulator struct {
	crc uint32
}

// Reset returns the accumulator to its initial state.
func (a *CRC32Accumulator) Reset() { a.crc = 0 }

// UpdateByte folds a single byte into the checksum.
func (a *CRC32Accumulator) UpdateByte(b byte) { a.crc = ^updcrc32(b, ^a.crc) }

// Update folds data into the checksum.
func (a *CRC32Accumulator) Update(data []byte) {
	crc := ^a.crc
	for _, b := range data {
		crc = updcrc32(b, crc)
	}
	a.crc = ^crc
}

// Sum returns the checksum of everything folded in since the last Reset.
func (a *CRC32Accumulator) Sum() uint32 { return a.crc }
