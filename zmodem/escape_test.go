package zmodem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeSetMembers(t *testing.T) {
	want := map[byte]byte{
		0x10: 0x50,
		0x11: 0x51,
		0x13: 0x53,
		0x18: 0x58,
		0x0D: 0x4D,
		0x8D: 0xCD,
		0x90: 0xD0,
		0x91: 0xD1,
		0x93: 0xD3,
	}
	for b, image := range want {
		assert.True(t, needsEscape(b), "0x%02x must be escaped", b)
		assert.Equal(t, image, escapeByte(b), "escape image of 0x%02x", b)
		assert.Equal(t, b, unescapeByte(image), "inverse of 0x%02x", image)
	}

	count := 0
	for i := 0; i < 256; i++ {
		if needsEscape(byte(i)) {
			count++
		}
	}
	assert.Equal(t, len(want), count, "escape set size")
}

func TestEscapeInverse(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		if needsEscape(b) {
			assert.Equal(t, b, unescapeByte(escapeByte(b)))
		} else {
			assert.Equal(t, b, escapeByte(b), "pass-through image of 0x%02x", b)
		}
	}
}

// TestEscapeWireRoundTrip encodes every byte value through the wire
// escape discipline and decodes it the way the streaming readers do.
func TestEscapeWireRoundTrip(t *testing.T) {
	var plain []byte
	for i := 0; i < 256; i++ {
		plain = append(plain, byte(i))
	}

	wire := appendEscaped(nil, plain)

	var decoded []byte
	pendingEscape := false
	for _, b := range wire {
		switch {
		case pendingEscape:
			pendingEscape = false
			decoded = append(decoded, unescapeByte(b))
		case b == ZDLE:
			pendingEscape = true
		default:
			decoded = append(decoded, b)
		}
	}
	require.False(t, pendingEscape)
	assert.Equal(t, plain, decoded)
}

func TestEscapedOutputIsClean(t *testing.T) {
	var plain []byte
	for i := 0; i < 256; i++ {
		plain = append(plain, byte(i))
	}
	wire := appendEscaped(nil, plain)

	// After escaping, a ZDLE appears only as an introducer.
	for i := 0; i < len(wire); i++ {
		if wire[i] == ZDLE {
			require.Less(t, i+1, len(wire))
			assert.NotEqual(t, byte(ZDLE), wire[i+1], "introduced byte at %d", i+1)
			i++
		}
	}
}
