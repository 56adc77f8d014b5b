package zmodem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, r *subpacketReader, wire []byte, chunk int) (int, bool) {
	t.Helper()
	total := 0
	for total < len(wire) {
		end := total + chunk
		if end > len(wire) {
			end = len(wire)
		}
		n, done, err := r.feed(wire[total:end])
		require.NoError(t, err)
		total += n
		if done {
			return total, true
		}
	}
	return total, false
}

func TestSubpacketRoundTrip(t *testing.T) {
	payload := []byte("subpacket payload \x00\x01 with text")
	for _, crc32Mode := range []bool{false, true} {
		for _, terminator := range []byte{ZCRCE, ZCRCG, ZCRCQ, ZCRCW} {
			wire := appendSubpacket(nil, payload, terminator, crc32Mode)

			var r subpacketReader
			r.maxSize = DefaultSubpacketSize
			r.begin(crc32Mode)
			consumed, done := feedAll(t, &r, wire, len(wire))
			require.True(t, done, "crc32=%v terminator=0x%02x", crc32Mode, terminator)
			assert.Equal(t, len(wire), consumed)
			assert.Equal(t, payload, r.buf)
			assert.Equal(t, terminator, r.terminator)
			assert.Equal(t, spWriting, r.state)
		}
	}
}

func TestSubpacketEscapedPayload(t *testing.T) {
	// Every escape-set byte, twice, plus the terminator range raw.
	payload := append(append([]byte{}, escapeSet...), escapeSet...)
	payload = append(payload, ZCRCE, ZCRCG, ZCRCQ, ZCRCW, 0xFF, 0x00)

	for _, crc32Mode := range []bool{false, true} {
		wire := appendSubpacket(nil, payload, ZCRCW, crc32Mode)

		var r subpacketReader
		r.maxSize = DefaultSubpacketSize
		r.begin(crc32Mode)
		_, done := feedAll(t, &r, wire, 1)
		require.True(t, done)
		assert.Equal(t, payload, r.buf)
	}
}

// TestSubpacketCRCBoundaryEscapes runs all single-byte payloads, which
// sweeps CRC trailers containing escape-set bytes through the separate
// CRC-phase unescape state.
func TestSubpacketCRCBoundaryEscapes(t *testing.T) {
	for i := 0; i < 256; i++ {
		payload := []byte{byte(i)}
		for _, crc32Mode := range []bool{false, true} {
			wire := appendSubpacket(nil, payload, ZCRCG, crc32Mode)

			var r subpacketReader
			r.maxSize = 16
			r.begin(crc32Mode)
			_, done := feedAll(t, &r, wire, 1)
			require.True(t, done, "payload=0x%02x crc32=%v", i, crc32Mode)
			require.True(t, bytes.Equal(payload, r.buf))
		}
	}
}

func TestSubpacketEmptyPayload(t *testing.T) {
	wire := appendSubpacket(nil, nil, ZCRCW, true)

	var r subpacketReader
	r.maxSize = DefaultSubpacketSize
	r.begin(true)
	_, done := feedAll(t, &r, wire, len(wire))
	require.True(t, done)
	assert.Empty(t, r.buf)
	assert.Equal(t, byte(ZCRCW), r.terminator)
}

func TestSubpacketCRCMismatch(t *testing.T) {
	payload := []byte("data that will be corrupted")

	wire := appendSubpacket(nil, payload, ZCRCW, true)
	wire[2] ^= 0x01
	var r32 subpacketReader
	r32.maxSize = DefaultSubpacketSize
	r32.begin(true)
	_, _, err := r32.feed(wire)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCRC32))

	wire = appendSubpacket(nil, payload, ZCRCW, false)
	wire[2] ^= 0x01
	var r16 subpacketReader
	r16.maxSize = DefaultSubpacketSize
	r16.begin(false)
	_, _, err = r16.feed(wire)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCRC16))
}

func TestSubpacketOverflow(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 64)
	wire := appendSubpacket(nil, payload, ZCRCW, true)

	var r subpacketReader
	r.maxSize = 32
	r.begin(true)
	_, _, err := r.feed(wire)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrMalformedPacket))
}

func TestSubpacketNotArmed(t *testing.T) {
	var r subpacketReader
	r.maxSize = DefaultSubpacketSize
	_, _, err := r.feed([]byte{'x'})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrMalformedPacket))
}
