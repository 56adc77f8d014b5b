// Package zmodem implements the ZMODEM file transfer protocol as a pair
// of transport-agnostic state machines.
//
// The core of the package is the Sender and the Receiver: byte-driven
// data pumps that never perform I/O themselves. Callers feed bytes that
// arrived from the remote peer with FeedIncoming, write out whatever
// DrainOutgoing returns, and move file contents through FeedFile (send
// side) or DrainFile (receive side). All wire-level concerns (header
// framing, ZDLE escaping, hex and binary encodings, CRC-16 and CRC-32
// verification, subpacket sequencing and windowing) live inside the
// machines.
//
// On top of the engine the package provides a Session that binds either
// machine to an io.ReadWriter, an SSH wrapper, and a terminal monitor
// that spots ZMODEM transfers inside interactive shell output.
package zmodem

// Frame encoding bytes. These follow the ZDLE introducer on the wire and
// select the header body format and the CRC width.
const (
	// ZPAD is the padding character that begins every frame.
	ZPAD = 0x2A // '*'

	// ZDLE is the ZMODEM data link escape character (Ctrl-X).
	ZDLE = 0x18

	// ZDLEE is ZDLE as it appears after escaping.
	ZDLEE = ZDLE ^ 0x40

	// ZBIN marks a binary header with a 16-bit CRC.
	ZBIN = 0x41 // 'A'

	// ZHEX marks a hex-encoded header with a 16-bit CRC.
	ZHEX = 0x42 // 'B'

	// ZBIN32 marks a binary header with a 32-bit CRC.
	ZBIN32 = 0x43 // 'C'
)

// Frame types.
const (
	ZRQINIT    = iota // request receive init
	ZRINIT            // receive init
	ZSINIT            // send init sequence (optional)
	ZACK              // acknowledgement with byte count
	ZFILE             // file metadata from sender
	ZSKIP             // to sender: skip this file
	ZNAK              // last header was garbled
	ZABORT            // abort batch transfers
	ZFIN              // finish session
	ZRPOS             // resume data at this position
	ZDATA             // data subpackets follow
	ZEOF              // end of file, with final byte count
	ZFERR             // fatal read or write error
	ZCRC              // file CRC request and response
	ZCHALLENGE        // receiver's challenge
	ZCOMPL            // request is complete
	ZCAN              // remote cancelled with CAN*5
	ZFREECNT          // request for free bytes on filesystem
	ZCOMMAND          // command from sending program
	ZSTDERR           // output to standard error

	// maxFrameType is the highest frame type accepted when decoding.
	maxFrameType = ZSTDERR
)

// Data subpacket terminators. Each follows a ZDLE on the wire and is
// covered by the subpacket CRC.
const (
	ZCRCE = 0x68 // 'h': end of frame, no ack
	ZCRCG = 0x69 // 'i': frame continues nonstop
	ZCRCQ = 0x6A // 'j': frame continues, ZACK expected
	ZCRCW = 0x6B // 'k': end of frame, ZACK expected
)

// isTerminator reports whether b is a subpacket terminator byte.
func isTerminator(b byte) bool {
	return b >= ZCRCE && b <= ZCRCW
}

// Receiver capability flags advertised in the ZRINIT header (Flags[3]).
const (
	CANFDX  = 0x01 // can send and receive in full duplex
	CANOVIO = 0x02 // can receive data during disk I/O
	CANBRK  = 0x04 // can send a break signal
	CANCRY  = 0x08 // can decrypt
	CANLZW  = 0x10 // can uncompress
	CANFC32 = 0x20 // can use 32-bit frame check
	ESCCTL  = 0x40 // expects control characters escaped
	ESC8    = 0x80 // expects 8th bit escaped
)

// Flow control and cancellation characters.
const (
	XON  = 0x11
	XOFF = 0x13
	CAN  = 0x18
)

// Subpacket sizing. The strict ZMODEM values are 1024 bytes per
// subpacket and 10 subpackets per window; larger values interoperate on
// clean links and can be enabled through the engine options.
const (
	DefaultSubpacketSize = 1024
	MaxSubpacketLimit    = 8192
	DefaultPerAck        = 10
	MaxPerAckLimit       = 200
)

// sessionTrailer is the two-byte "over and out" sequence a sender emits
// after the final ZFIN exchange.
var sessionTrailer = []byte{'O', 'O'}

// AbortSequence cancels a session when written to the peer: eight CAN
// characters followed by backspaces that erase them from an interactive
// shell.
var AbortSequence = []byte{
	0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18, 0x18,
	0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08,
}

// Encoding identifies a header or subpacket wire encoding.
type Encoding byte

const (
	EncodingBin   Encoding = ZBIN   // binary, CRC-16
	EncodingHex   Encoding = ZHEX   // hex text, CRC-16
	EncodingBin32 Encoding = ZBIN32 // binary, CRC-32
)

// valid reports whether e is one of the three supported encodings.
func (e Encoding) valid() bool {
	return e == EncodingBin || e == EncodingHex || e == EncodingBin32
}

// crcLen returns the trailer CRC width in bytes for the encoding.
func (e Encoding) crcLen() int {
	if e == EncodingBin32 {
		return 4
	}
	return 2
}

func (e Encoding) String() string {
	switch e {
	case EncodingBin:
		return "ZBIN"
	case EncodingHex:
		return "ZHEX"
	case EncodingBin32:
		return "ZBIN32"
	default:
		return "UNKNOWN"
	}
}

// frameNames provides human-readable names for frame types, for logging.
var frameNames = []string{
	"ZRQINIT", "ZRINIT", "ZSINIT", "ZACK", "ZFILE",
	"ZSKIP", "ZNAK", "ZABORT", "ZFIN", "ZRPOS",
	"ZDATA", "ZEOF", "ZFERR", "ZCRC", "ZCHALLENGE",
	"ZCOMPL", "ZCAN", "ZFREECNT", "ZCOMMAND", "ZSTDERR",
}

// FrameTypeName returns the human-readable name for a frame type.
func FrameTypeName(frameType int) string {
	if frameType < 0 || frameType >= len(frameNames) {
		return "UNKNOWN"
	}
	return frameNames[frameType]
}
