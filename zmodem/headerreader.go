package zmodem

// headerReader extracts validated headers from a noisy byte stream. It
// scans for the ZPAD [ZPAD] ZDLE preamble, reads the encoding byte,
// collects the encoding's worth of (unescaped) payload bytes, and
// decodes them. Anything that is not a preamble (shell prompts, ANSI
// sequences, line noise) is consumed and discarded, which is what lets
// a transfer start in the middle of arbitrary terminal output.
//
// All state survives across feed calls, so input may arrive in
// fragments of any size.

type headerReaderState int

const (
	hdrSeekingZPad headerReaderState = iota
	hdrReadingEncoding
	hdrReadingData
)

type zpadState int

const (
	zpadIdle zpadState = iota
	zpadOne
	zpadTwo
)

type headerReader struct {
	state         headerReaderState
	zpad          zpadState
	encoding      Encoding
	buf           []byte
	escapePending bool
}

// reset returns the reader to its initial seeking state. Called at
// every phase boundary and after a framing error so that subsequent
// bytes can resynchronize.
func (r *headerReader) reset() {
	r.state = hdrSeekingZPad
	r.zpad = zpadIdle
	r.buf = r.buf[:0]
	r.escapePending = false
}

// feed consumes bytes until a complete header decodes, the input runs
// out, or a framing error occurs. The returned header is nil while
// incomplete. consumed always reports how much of data was integrated;
// the caller may discard that prefix.
func (r *headerReader) feed(data []byte) (hdr *Header, consumed int, err error) {
	for consumed < len(data) {
		b := data[consumed]
		consumed++

		switch r.state {
		case hdrSeekingZPad:
			switch {
			case b == ZPAD:
				if r.zpad == zpadIdle {
					r.zpad = zpadOne
				} else {
					r.zpad = zpadTwo
				}
			case b == ZDLE && r.zpad != zpadIdle:
				r.state = hdrReadingEncoding
			default:
				r.zpad = zpadIdle
			}

		case hdrReadingEncoding:
			enc := Encoding(b)
			if !enc.valid() {
				r.reset()
				return nil, consumed, NewError(ErrMalformedEncoding, "unknown encoding byte")
			}
			r.encoding = enc
			r.buf = r.buf[:0]
			r.escapePending = false
			r.state = hdrReadingData

		case hdrReadingData:
			switch {
			case r.escapePending:
				r.escapePending = false
				r.buf = append(r.buf, unescapeByte(b))
			case b == ZDLE:
				r.escapePending = true
			default:
				r.buf = append(r.buf, b)
			}
			if len(r.buf) == headerReadSize(r.encoding) {
				h, err := decodeHeaderPayload(r.encoding, r.buf)
				r.reset()
				if err != nil {
					return nil, consumed, err
				}
				return &h, consumed, nil
			}
		}
	}
	return nil, consumed, nil
}
