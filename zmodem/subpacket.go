package zmodem

import "encoding/binary"

// Subpackets carry the data phase of a transfer: a run of escaped
// payload bytes, a ZDLE + terminator, and a CRC over payload plus
// terminator in the width chosen by the enclosing frame's encoding.
// appendSubpacket builds the wire form; subpacketReader streams one back
// out of arbitrarily fragmented input.

// appendSubpacket appends the escaped wire form of one data subpacket
// to dst: payload, ZDLE, terminator, escaped CRC (CRC-32 little-endian
// when crc32Mode, CRC-16 big-endian otherwise).
func appendSubpacket(dst, payload []byte, terminator byte, crc32Mode bool) []byte {
	dst = appendEscaped(dst, payload)
	dst = append(dst, ZDLE, terminator)

	if crc32Mode {
		var acc CRC32Accumulator
		acc.Update(payload)
		acc.UpdateByte(terminator)
		var crc [4]byte
		binary.LittleEndian.PutUint32(crc[:], acc.Sum())
		return appendEscaped(dst, crc[:])
	}

	var acc CRC16Accumulator
	acc.Update(payload)
	acc.UpdateByte(terminator)
	sum := acc.Sum()
	return appendEscaped(dst, []byte{byte(sum >> 8), byte(sum)})
}

type subpacketState int

const (
	spIdle subpacketState = iota
	spReading
	spWriting
	spCrc
)

// subpacketReader is the streaming state machine for the data phase.
// In spReading it unescapes bytes into buf while folding them into the
// running CRC; spotting a ZDLE + terminator moves it to spCrc, where the
// trailer is collected (with its own escape state, kept apart so a ZDLE
// straddling the payload/CRC boundary cannot leak across) and
// verified. A verified subpacket parks the reader in spWriting until
// the owner has disposed of buf.
type subpacketReader struct {
	state   subpacketState
	buf     []byte
	maxSize int

	crc32Mode bool
	crc16     CRC16Accumulator
	crc32     CRC32Accumulator

	escapePending    bool // payload-phase ZDLE seen, next byte is escaped
	crcEscapePending bool // CRC-phase ZDLE seen

	terminator byte
	crcBuf     [4]byte
	crcGot     int
}

// begin arms the reader for a new subpacket under the given CRC width.
func (r *subpacketReader) begin(crc32Mode bool) {
	r.state = spReading
	r.buf = nil
	r.crc32Mode = crc32Mode
	r.crc16.Reset()
	r.crc32.Reset()
	r.escapePending = false
	r.crcEscapePending = false
	r.terminator = 0
	r.crcGot = 0
}

// reset disarms the reader.
func (r *subpacketReader) reset() {
	r.state = spIdle
	r.buf = nil
	r.escapePending = false
	r.crcEscapePending = false
	r.terminator = 0
	r.crcGot = 0
}

func (r *subpacketReader) updateCRC(b byte) {
	if r.crc32Mode {
		r.crc32.UpdateByte(b)
	} else {
		r.crc16.UpdateByte(b)
	}
}

func (r *subpacketReader) appendPayload(b byte) error {
	if len(r.buf) >= r.maxSize {
		return NewError(ErrMalformedPacket, "subpacket exceeds negotiated size")
	}
	r.buf = append(r.buf, b)
	r.updateCRC(b)
	return nil
}

// feed consumes bytes until the subpacket completes, the input runs
// out, or a failure occurs. done reports completion: the payload is
// then in buf, the end type in terminator, and the reader sits in
// spWriting.
func (r *subpacketReader) feed(data []byte) (consumed int, done bool, err error) {
	for consumed < len(data) {
		b := data[consumed]
		consumed++

		switch r.state {
		case spReading:
			switch {
			case r.escapePending:
				r.escapePending = false
				if isTerminator(b) {
					r.terminator = b
					r.updateCRC(b)
					r.state = spCrc
					continue
				}
				if err := r.appendPayload(unescapeByte(b)); err != nil {
					return consumed, false, err
				}
			case b == ZDLE:
				r.escapePending = true
			default:
				if err := r.appendPayload(b); err != nil {
					return consumed, false, err
				}
			}

		case spCrc:
			switch {
			case r.crcEscapePending:
				r.crcEscapePending = false
				r.crcBuf[r.crcGot] = unescapeByte(b)
				r.crcGot++
			case b == ZDLE:
				r.crcEscapePending = true
			default:
				r.crcBuf[r.crcGot] = b
				r.crcGot++
			}
			if r.crcGot == r.crcLen() {
				if err := r.verify(); err != nil {
					return consumed, false, err
				}
				r.state = spWriting
				return consumed, true, nil
			}

		default:
			// Not armed; the byte belongs to the header stream.
			return consumed - 1, false, NewError(ErrMalformedPacket, "subpacket reader not armed")
		}
	}
	return consumed, false, nil
}

func (r *subpacketReader) crcLen() int {
	if r.crc32Mode {
		return 4
	}
	return 2
}

func (r *subpacketReader) verify() error {
	if r.crc32Mode {
		got := binary.LittleEndian.Uint32(r.crcBuf[:4])
		if got != r.crc32.Sum() {
			return NewError(ErrCRC32, "subpacket check failed")
		}
		return nil
	}
	got := uint16(r.crcBuf[0])<<8 | uint16(r.crcBuf[1])
	if got != r.crc16.Sum() {
		return NewError(ErrCRC16, "subpacket check failed")
	}
	return nil
}
