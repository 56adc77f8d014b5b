package zmodem

// ZDLE escaping. A byte in the escape set is transmitted as ZDLE
// followed by the byte XOR 0x40; every other byte passes through
// unchanged. The set covers the software flow control characters, DLE,
// CR, ZDLE itself, and the 8th-bit twins of CR, DLE and the flow control
// characters (0x98 is not escaped), which keeps transfers alive across
// XON/XOFF links and Telenet-style CR mangling.

// escapeSet lists the bytes that must be ZDLE-escaped on the wire.
var escapeSet = []byte{0x0D, 0x10, XON, XOFF, ZDLE, 0x8D, 0x90, 0x91, 0x93}

var (
	escapeTable   [256]byte
	unescapeTable [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		escapeTable[i] = byte(i)
		unescapeTable[i] = byte(i)
	}
	for _, b := range escapeSet {
		escapeTable[b] = b ^ 0x40
		unescapeTable[b^0x40] = b
	}
}

// needsEscape reports whether b requires a ZDLE introducer on the wire.
func needsEscape(b byte) bool {
	return escapeTable[b] != b
}

// escapeByte returns the wire image of b as sent after a ZDLE.
func escapeByte(b byte) byte {
	return escapeTable[b]
}

// unescapeByte maps the byte following a ZDLE back to the original.
func unescapeByte(b byte) byte {
	return unescapeTable[b]
}

// appendEscaped appends data to dst with ZDLE escaping applied.
func appendEscaped(dst, data []byte) []byte {
	for _, b := range data {
		if needsEscape(b) {
			dst = append(dst, ZDLE, escapeTable[b])
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}
