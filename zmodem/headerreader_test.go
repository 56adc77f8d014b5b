package zmodem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderReaderSkipsGarbage(t *testing.T) {
	wire := append([]byte("login: \x1b[0;1mwelcome\r\n* not a frame **nope"), hexHeader(ZRINIT).Encode()...)
	wire = append(wire, []byte("trailing shell output")...)

	var reader headerReader
	h, consumed, err := reader.feed(wire)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ZRINIT, h.Frame)
	// Everything through the header is consumed, the trailer is not.
	assert.Equal(t, len(wire)-len("trailing shell output"), consumed)
}

func TestHeaderReaderFragmented(t *testing.T) {
	wire := append([]byte("noise"), hexHeader(ZRPOS).WithCount(1024).Encode()...)

	var reader headerReader
	var got *Header
	total := 0
	for i := 0; i < len(wire) && got == nil; {
		h, n, err := reader.feed(wire[i : i+1])
		require.NoError(t, err)
		i += n
		total += n
		got = h
	}
	require.NotNil(t, got)
	assert.Equal(t, ZRPOS, got.Frame)
	assert.Equal(t, uint32(1024), got.Count())
}

func TestHeaderReaderBinaryEscapes(t *testing.T) {
	// A count of 0x900D1811 puts 0x11, 0x18 (ZDLE), 0x0D and 0x90 into
	// the flag bytes, forcing escapes inside the binary payload.
	h := binHeader(ZRPOS, false).WithCount(0x900D1811)
	wire := h.Encode()

	var reader headerReader
	got, _, err := reader.feed(wire)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint32(0x900D1811), got.Count())
	assert.Equal(t, EncodingBin, got.Encoding)
}

func TestHeaderReaderBin32(t *testing.T) {
	wire := binHeader(ZEOF, true).WithCount(4096).Encode()

	var reader headerReader
	got, _, err := reader.feed(wire)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ZEOF, got.Frame)
	assert.Equal(t, uint32(4096), got.Count())
	assert.Equal(t, EncodingBin32, got.Encoding)
}

func TestHeaderReaderMalformedEncodingResyncs(t *testing.T) {
	var reader headerReader

	_, consumed, err := reader.feed([]byte{ZPAD, ZPAD, ZDLE, 'Z'})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrMalformedEncoding))
	assert.Equal(t, 4, consumed)

	// The reader resets, so a following header still parses.
	h, _, err := reader.feed(hexHeader(ZACK).Encode())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ZACK, h.Frame)
}

func TestHeaderReaderCorruptHexCRC(t *testing.T) {
	wire := hexHeader(ZRINIT).Encode()
	// Flip one payload hex digit (after the 4-byte preamble).
	if wire[6] == '0' {
		wire[6] = '1'
	} else {
		wire[6] = '0'
	}

	var reader headerReader
	_, _, err := reader.feed(wire)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrCRC16))
}

func TestHeaderReaderZPadStates(t *testing.T) {
	// A single ZPAD before ZDLE is accepted (binary headers use one),
	// and runs of ZPADs collapse.
	single := binHeader(ZDATA, true).WithCount(0).Encode()
	var reader headerReader
	h, _, err := reader.feed(single)
	require.NoError(t, err)
	require.NotNil(t, h)

	many := append([]byte{ZPAD, ZPAD, ZPAD, ZPAD}, hexHeader(ZFIN).Encode()...)
	reader.reset()
	h, _, err = reader.feed(many)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ZFIN, h.Frame)

	// ZPAD ZPAD followed by something else resets the hunt.
	reader.reset()
	h, _, err = reader.feed([]byte{ZPAD, ZPAD, 'x'})
	require.NoError(t, err)
	assert.Nil(t, h)
	h, _, err = reader.feed(hexHeader(ZNAK).Encode())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ZNAK, h.Frame)
}

func TestHeaderReaderNotReady(t *testing.T) {
	wire := hexHeader(ZRINIT).Encode()

	var reader headerReader
	h, consumed, err := reader.feed(wire[:7])
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Equal(t, 7, consumed)

	h, _, err = reader.feed(wire[7:])
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ZRINIT, h.Frame)
}
