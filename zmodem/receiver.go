package zmodem

import "fmt"

// ReceiverState enumerates the receive-side protocol phases.
type ReceiverState int

const (
	// ReceiverSessionBegin: nothing accepted yet; ZRINIT is queued.
	ReceiverSessionBegin ReceiverState = iota

	// ReceiverFileBegin: handshake (or previous file) done, waiting
	// for the next ZFILE, ZDATA or ZFIN.
	ReceiverFileBegin

	// ReceiverFileReadingMetadata: inside the ZFILE metadata subpacket.
	ReceiverFileReadingMetadata

	// ReceiverFileReadingSubpacket: inside a ZDATA subpacket.
	ReceiverFileReadingSubpacket

	// ReceiverFileWaitingSubpacket: between frames; a header is next.
	ReceiverFileWaitingSubpacket

	// ReceiverSessionEnd: terminal state after the ZFIN exchange.
	ReceiverSessionEnd
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverSessionBegin:
		return "SessionBegin"
	case ReceiverFileBegin:
		return "FileBegin"
	case ReceiverFileReadingMetadata:
		return "FileReadingMetadata"
	case ReceiverFileReadingSubpacket:
		return "FileReadingSubpacket"
	case ReceiverFileWaitingSubpacket:
		return "FileWaitingSubpacket"
	case ReceiverSessionEnd:
		return "SessionEnd"
	default:
		return "Unknown"
	}
}

// Receiver is the receive-side ZMODEM state machine. Like the Sender it
// performs no I/O: peer bytes go in through FeedIncoming, reply bytes
// come out through DrainOutgoing, and verified file data is collected
// through DrainFile or FileData/AdvanceFile. A single Receiver is not
// safe for concurrent use.
type Receiver struct {
	cfg    engineConfig
	logger Logger

	state ReceiverState
	hr    headerReader
	sp    subpacketReader

	out    []byte
	events eventQueue

	count    int64 // verified data bytes delivered for the current file
	fileName string
	fileSize int64

	crc32Mode bool // CRC width of the current data encoding

	fileDrained int // bytes of the pending subpacket already taken via AdvanceFile
}

// NewReceiver creates a receive-side state machine with a ZRINIT
// already queued: draining and writing the outgoing buffer announces
// readiness to the peer.
func NewReceiver(opts ...Option) *Receiver {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.clamp()

	r := &Receiver{
		cfg:    cfg,
		logger: cfg.logger,
		state:  ReceiverSessionBegin,
	}
	r.sp.maxSize = cfg.maxSubpacketSize
	r.queueZRINIT()
	return r
}

// State returns the current protocol phase.
func (r *Receiver) State() ReceiverState { return r.state }

// FileName returns the name announced for the current file.
func (r *Receiver) FileName() string { return r.fileName }

// FileSize returns the size announced for the current file.
func (r *Receiver) FileSize() int64 { return r.fileSize }

// Count returns how many verified data bytes have been delivered for
// the current file.
func (r *Receiver) Count() int64 { return r.count }

// FeedIncoming integrates bytes that arrived from the peer and reports
// how many were consumed. It stops early, possibly consuming
// nothing, while outgoing bytes await draining, while file data awaits DrainFile,
// when the event queue is full, and in the terminal state.
func (r *Receiver) FeedIncoming(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		if len(r.out) > 0 || r.state == ReceiverSessionEnd || r.events.full() || r.sp.state == spWriting {
			break
		}

		if r.state == ReceiverFileReadingMetadata || r.state == ReceiverFileReadingSubpacket {
			n, done, err := r.sp.feed(data[consumed:])
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !done {
				break
			}
			if r.state == ReceiverFileReadingMetadata {
				if err := r.finishMetadata(); err != nil {
					return consumed, err
				}
			}
			// Data subpackets park the reader in its writing state; the
			// loop condition stops the pump until the caller drains.
			continue
		}

		h, n, err := r.hr.feed(data[consumed:])
		consumed += n
		if err != nil {
			return consumed, err
		}
		if h == nil {
			break
		}
		if err := r.handleHeader(*h); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// DrainOutgoing returns the queued outgoing bytes and clears them.
// Single-shot: the caller writes everything before the next call.
func (r *Receiver) DrainOutgoing() []byte {
	out := r.out
	r.out = nil
	return out
}

// FileData returns the undrained portion of the pending data subpacket
// without consuming it. It is empty when no subpacket is pending.
func (r *Receiver) FileData() []byte {
	if r.sp.state != spWriting {
		return nil
	}
	return r.sp.buf[r.fileDrained:]
}

// DrainFile returns the pending verified file data and completes the
// subpacket, so the next FeedIncoming resumes parsing past it.
func (r *Receiver) DrainFile() []byte {
	if r.sp.state != spWriting {
		return nil
	}
	data := r.sp.buf[r.fileDrained:]
	r.finishSubpacket()
	return data
}

// AdvanceFile records that the caller consumed n bytes of the pending
// subpacket (as obtained from FileData). Once the whole payload is
// consumed the subpacket completes, exactly as DrainFile would.
func (r *Receiver) AdvanceFile(n int) error {
	if r.sp.state != spWriting {
		return NewError(ErrUnsupported, "no file data pending")
	}
	if n < 0 || r.fileDrained+n > len(r.sp.buf) {
		return NewError(ErrUnsupported, fmt.Sprintf("advance of %d exceeds pending %d bytes", n, len(r.sp.buf)-r.fileDrained))
	}
	r.fileDrained += n
	if r.fileDrained == len(r.sp.buf) {
		r.finishSubpacket()
	}
	return nil
}

// PollEvent returns and consumes the next pending lifecycle event.
func (r *Receiver) PollEvent() (Event, bool) {
	return r.events.pop()
}

func (r *Receiver) queueHeader(h Header) {
	r.logger.Debug("receiver: queue %s %s count=%d", h.Encoding, FrameTypeName(h.Frame), h.Count())
	r.out = append(r.out, h.Encode()...)
}

// queueZRINIT announces readiness: the advertised buffer size in the
// low flag bytes, capability bits in the high one.
func (r *Receiver) queueZRINIT() {
	h := hexHeader(ZRINIT)
	h.Flags[0] = byte(r.cfg.bufferSize)
	h.Flags[1] = byte(r.cfg.bufferSize >> 8)
	h.Flags[3] = r.cfg.capabilities
	r.queueHeader(h)
}

// finishMetadata completes the ZFILE metadata subpacket: parse it,
// announce the file to the caller, and ask for data from offset zero.
func (r *Receiver) finishMetadata() error {
	info, err := ParseFileInfo(r.sp.buf)
	if err != nil {
		return err
	}
	r.fileName = info.Name
	r.fileSize = info.Size
	r.count = 0
	r.fileDrained = 0
	r.sp.reset()
	r.state = ReceiverFileBegin
	r.queueHeader(hexHeader(ZRPOS).WithCount(0))
	return r.events.push(Event{Type: EventFileStart, Name: info.Name, Size: info.Size})
}

// finishSubpacket accounts the drained payload and applies the
// terminator semantics: ZCRCW and ZCRCQ solicit a ZACK with the running
// count; ZCRCE and ZCRCW end the frame, handing control back to the
// header stream; ZCRCG and ZCRCQ keep the subpacket reader armed.
func (r *Receiver) finishSubpacket() {
	terminator := r.sp.terminator
	r.count += int64(len(r.sp.buf))
	r.fileDrained = 0

	switch terminator {
	case ZCRCW:
		r.queueHeader(hexHeader(ZACK).WithCount(uint32(r.count)))
		r.state = ReceiverFileWaitingSubpacket
		r.sp.reset()
	case ZCRCQ:
		r.queueHeader(hexHeader(ZACK).WithCount(uint32(r.count)))
		r.sp.begin(r.crc32Mode)
	case ZCRCG:
		r.sp.begin(r.crc32Mode)
	case ZCRCE:
		r.state = ReceiverFileWaitingSubpacket
		r.sp.reset()
	}
}

func (r *Receiver) handleHeader(h Header) error {
	r.logger.Debug("receiver: got %s %s count=%d state=%s", h.Encoding, FrameTypeName(h.Frame), h.Count(), r.state)

	switch h.Frame {
	case ZRQINIT:
		if r.state == ReceiverSessionBegin {
			r.queueZRINIT()
		}

	case ZFILE:
		if r.state == ReceiverSessionBegin || r.state == ReceiverFileBegin {
			r.crc32Mode = h.Encoding == EncodingBin32
			r.sp.begin(r.crc32Mode)
			r.state = ReceiverFileReadingMetadata
		}

	case ZDATA:
		switch r.state {
		case ReceiverFileBegin, ReceiverFileWaitingSubpacket:
			if int64(h.Count()) != r.count {
				// The sender is at a different offset; pull it back to
				// where our verified data actually ends.
				r.queueHeader(hexHeader(ZRPOS).WithCount(uint32(r.count)))
				return nil
			}
			r.crc32Mode = h.Encoding == EncodingBin32
			r.sp.begin(r.crc32Mode)
			r.state = ReceiverFileReadingSubpacket
		case ReceiverSessionBegin:
			r.queueZRINIT()
		}

	case ZEOF:
		if (r.state == ReceiverFileWaitingSubpacket || r.state == ReceiverFileBegin) && int64(h.Count()) == r.count {
			r.queueZRINIT()
			r.state = ReceiverFileBegin
			return r.events.push(Event{Type: EventFileComplete, Name: r.fileName, Size: r.fileSize})
		}

	case ZFIN:
		if r.state == ReceiverFileWaitingSubpacket || r.state == ReceiverFileBegin {
			r.queueHeader(hexHeader(ZFIN))
			r.state = ReceiverSessionEnd
			return r.events.push(Event{Type: EventSessionComplete})
		}

	default:
		r.logger.Debug("receiver: ignoring %s in state %s", FrameTypeName(h.Frame), r.state)
	}
	return nil
}
