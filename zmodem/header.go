package zmodem

import (
	"encoding/binary"
	"encoding/hex"
)

// Header is a ZMODEM frame header: an encoding, a frame type, and four
// flag bytes. The flag bytes carry either capability bits (ZRINIT) or a
// 32-bit little-endian byte count (ZRPOS, ZACK, ZDATA, ZEOF). Headers
// are immutable; WithCount returns a modified copy.
type Header struct {
	Encoding Encoding
	Frame    int
	Flags    [4]byte
}

// hexHeader builds a ZHEX header with zero flags.
func hexHeader(frame int) Header {
	return Header{Encoding: EncodingHex, Frame: frame}
}

// binHeader builds a binary header, ZBIN32 when crc32Mode is set.
func binHeader(frame int, crc32Mode bool) Header {
	enc := EncodingBin
	if crc32Mode {
		enc = EncodingBin32
	}
	return Header{Encoding: enc, Frame: frame}
}

// WithCount returns a copy of h with the flags set to n, little-endian.
func (h Header) WithCount(n uint32) Header {
	binary.LittleEndian.PutUint32(h.Flags[:], n)
	return h
}

// Count interprets the flags as a little-endian 32-bit byte count.
func (h Header) Count() uint32 {
	return binary.LittleEndian.Uint32(h.Flags[:])
}

// hexNoXON lists the frames whose ZHEX form omits the trailing XON.
// This follows the lrzsz convention; peers that disagree can be
// accommodated by editing the set before opening a session.
var hexNoXON = map[int]bool{ZACK: true, ZFIN: true}

// headerReadSize returns how many decoded payload bytes the header
// reader must collect after the encoding byte: frame type + flags + CRC
// for the binary encodings, and the hex character count for ZHEX.
func headerReadSize(enc Encoding) int {
	switch enc {
	case EncodingBin:
		return 7
	case EncodingBin32:
		return 9
	default:
		return 14
	}
}

// Encode renders the complete wire form of the header: the ZPAD
// preamble (doubled for ZHEX), ZDLE, the encoding byte, and the
// payload + CRC trailer: hex-encoded with CR LF [XON] for ZHEX,
// ZDLE-escaped for the binary encodings.
func (h Header) Encode() []byte {
	payload := [5]byte{byte(h.Frame), h.Flags[0], h.Flags[1], h.Flags[2], h.Flags[3]}

	body := make([]byte, 0, 9)
	body = append(body, payload[:]...)
	if h.Encoding == EncodingBin32 {
		var crc [4]byte
		binary.LittleEndian.PutUint32(crc[:], CRC32(payload[:]))
		body = append(body, crc[:]...)
	} else {
		crc := CRC16(payload[:])
		body = append(body, byte(crc>>8), byte(crc))
	}

	out := make([]byte, 0, 4+2*len(body)+3)
	out = append(out, ZPAD)
	if h.Encoding == EncodingHex {
		out = append(out, ZPAD)
	}
	out = append(out, ZDLE, byte(h.Encoding))

	if h.Encoding == EncodingHex {
		hexBody := make([]byte, hex.EncodedLen(len(body)))
		hex.Encode(hexBody, body)
		out = append(out, hexBody...)
		out = append(out, 0x0D, 0x0A)
		if !hexNoXON[h.Frame] {
			out = append(out, XON)
		}
		return out
	}

	return appendEscaped(out, body)
}

// decodeHeaderPayload validates the payload bytes collected by the
// header reader (hex characters for ZHEX, unescaped bytes otherwise)
// and produces the header.
func decodeHeaderPayload(enc Encoding, payload []byte) (Header, error) {
	if enc == EncodingHex {
		if len(payload)%2 != 0 {
			return Header{}, NewError(ErrMalformedHeader, "odd hex payload length")
		}
		decoded := make([]byte, hex.DecodedLen(len(payload)))
		if _, err := hex.Decode(decoded, payload); err != nil {
			return Header{}, NewError(ErrMalformedHeader, "non-hex character in header")
		}
		payload = decoded
	}

	if len(payload) < 5+enc.crcLen() {
		return Header{}, NewError(ErrMalformedHeader, "short header payload")
	}

	if enc == EncodingBin32 {
		want := binary.LittleEndian.Uint32(payload[5:9])
		if CRC32(payload[:5]) != want {
			return Header{}, crcError(enc, "header check failed")
		}
	} else {
		want := uint16(payload[5])<<8 | uint16(payload[6])
		if CRC16(payload[:5]) != want {
			return Header{}, crcError(enc, "header check failed")
		}
	}

	frame := int(payload[0])
	if frame > maxFrameType {
		return Header{}, NewError(ErrMalformedFrame, "unknown frame type")
	}

	h := Header{Encoding: enc, Frame: frame}
	copy(h.Flags[:], payload[1:5])
	return h, nil
}
