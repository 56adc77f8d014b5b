package zmodem

import (
	"encoding/binary"
	"fmt"
)

// SenderState enumerates the send-side protocol phases.
type SenderState int

const (
	// SenderWaitReceiverInit: waiting for the peer's ZRINIT.
	SenderWaitReceiverInit SenderState = iota

	// SenderReadyForFile: handshake done, no file in flight.
	SenderReadyForFile

	// SenderWaitFilePos: ZFILE announced, waiting for ZRPOS.
	SenderWaitFilePos

	// SenderNeedFileData: a FileRequest is (or is about to be)
	// outstanding; the caller must supply bytes via FeedFile.
	SenderNeedFileData

	// SenderWaitFileAck: a ZCRCW subpacket went out, waiting for ZACK.
	SenderWaitFileAck

	// SenderWaitFileDone: ZEOF went out, waiting for the peer's ZRINIT.
	SenderWaitFileDone

	// SenderWaitFinish: ZFIN went out, waiting for the peer's ZFIN.
	SenderWaitFinish

	// SenderDone: terminal state; the closing "OO" has been queued.
	SenderDone
)

func (s SenderState) String() string {
	switch s {
	case SenderWaitReceiverInit:
		return "WaitReceiverInit"
	case SenderReadyForFile:
		return "ReadyForFile"
	case SenderWaitFilePos:
		return "WaitFilePos"
	case SenderNeedFileData:
		return "NeedFileData"
	case SenderWaitFileAck:
		return "WaitFileAck"
	case SenderWaitFileDone:
		return "WaitFileDone"
	case SenderWaitFinish:
		return "WaitFinish"
	case SenderDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Sender is the send-side ZMODEM state machine. It performs no I/O:
// bytes from the peer go in through FeedIncoming, bytes for the peer
// come out through DrainOutgoing, and file contents are pulled from the
// caller through PollFile/FeedFile. A single Sender is not safe for
// concurrent use.
type Sender struct {
	cfg    engineConfig
	logger Logger

	state SenderState
	hr    headerReader

	out    []byte
	events eventQueue

	fileName string
	fileSize int64
	hasFile  bool

	pending          *FileRequest
	frameRemaining   int
	frameNeedsHeader bool

	crc32Mode           bool
	maxSubpacketSize    int
	maxSubpacketsPerAck int

	finishRequested bool
}

// NewSender creates a send-side state machine. When initiator is set,
// a ZRQINIT header is queued so that draining and writing the outgoing
// buffer announces the session to the peer.
func NewSender(initiator bool, opts ...Option) *Sender {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.clamp()

	s := &Sender{
		cfg:                 cfg,
		logger:              cfg.logger,
		state:               SenderWaitReceiverInit,
		crc32Mode:           true,
		maxSubpacketSize:    cfg.maxSubpacketSize,
		maxSubpacketsPerAck: cfg.maxSubpacketsPerAck,
	}
	if initiator {
		s.queueHeader(hexHeader(ZRQINIT))
	}
	return s
}

// State returns the current protocol phase.
func (s *Sender) State() SenderState { return s.state }

// StartFile registers the next file to transfer. It is legal only
// before the handshake completes or between files. If the machine is
// already ReadyForFile and the line is clear, the ZFILE announcement is
// queued immediately; otherwise it goes out as soon as the outgoing
// buffer drains.
func (s *Sender) StartFile(name string, size int64) error {
	if s.state != SenderWaitReceiverInit && s.state != SenderReadyForFile {
		return NewError(ErrUnsupported, fmt.Sprintf("StartFile in state %s", s.state))
	}
	if size < 0 {
		return NewError(ErrUnsupported, "negative file size")
	}
	s.fileName = name
	s.fileSize = size
	s.hasFile = true

	if s.state == SenderReadyForFile && len(s.out) == 0 {
		s.queueFileHeader()
		s.state = SenderWaitFilePos
	}
	return nil
}

// FinishSession latches the intent to close the session once no file is
// in flight. Between files it queues the ZFIN immediately.
func (s *Sender) FinishSession() error {
	s.finishRequested = true
	if s.state == SenderReadyForFile {
		s.queueHeader(hexHeader(ZFIN))
		s.state = SenderWaitFinish
	}
	return nil
}

// PollFile returns the outstanding file request, if any. The caller
// answers it with FeedFile.
func (s *Sender) PollFile() (FileRequest, bool) {
	if s.pending == nil {
		return FileRequest{}, false
	}
	return *s.pending, true
}

// FeedFile supplies file bytes for the outstanding request. The chunk
// must be non-empty and no longer than the requested length (nor than
// what remains of the file). Each call emits exactly one data
// subpacket; the terminator is ZCRCW when it closes the window or the
// file, ZCRCG otherwise.
func (s *Sender) FeedFile(data []byte) error {
	if s.state != SenderNeedFileData || s.pending == nil {
		return NewError(ErrUnsupported, fmt.Sprintf("FeedFile in state %s", s.state))
	}
	limit := s.pending.Len
	if rest := s.fileSize - s.pending.Offset; int64(limit) > rest {
		limit = int(rest)
	}
	if len(data) == 0 || len(data) > limit {
		return NewError(ErrUnexpectedEOF, fmt.Sprintf("chunk of %d bytes outside [1, %d]", len(data), limit))
	}

	if s.frameNeedsHeader {
		s.queueHeader(binHeader(ZDATA, s.crc32Mode).WithCount(uint32(s.pending.Offset)))
		s.frameNeedsHeader = false
	}

	end := s.pending.Offset + int64(len(data))
	terminator := byte(ZCRCG)
	if s.frameRemaining <= 1 || end >= s.fileSize {
		terminator = ZCRCW
	}
	s.out = appendSubpacket(s.out, data, terminator, s.crc32Mode)
	s.frameRemaining--

	if terminator == ZCRCW {
		s.pending = nil
		s.state = SenderWaitFileAck
		return nil
	}

	next := s.fileSize - end
	if next > int64(s.maxSubpacketSize) {
		next = int64(s.maxSubpacketSize)
	}
	s.pending = &FileRequest{Offset: end, Len: int(next)}
	return nil
}

// FeedIncoming integrates bytes that arrived from the peer and reports
// how many were consumed. It stops early, possibly consuming
// nothing, while outgoing bytes await draining, once a file request is produced,
// and in the terminal state.
func (s *Sender) FeedIncoming(data []byte) (int, error) {
	consumed := 0
	for consumed < len(data) {
		if len(s.out) > 0 || s.pending != nil || s.state == SenderDone || s.events.full() {
			break
		}
		h, n, err := s.hr.feed(data[consumed:])
		consumed += n
		if err != nil {
			return consumed, err
		}
		if h == nil {
			break
		}
		if err := s.handleHeader(*h); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// DrainOutgoing returns the queued outgoing bytes and clears them. The
// drain is single-shot: the caller is expected to write everything
// before touching the machine again. A file announcement or session
// close deferred by a busy line is queued as part of the drain.
func (s *Sender) DrainOutgoing() []byte {
	out := s.out
	s.out = nil

	if s.state == SenderReadyForFile {
		if s.hasFile {
			s.queueFileHeader()
			s.state = SenderWaitFilePos
		} else if s.finishRequested {
			s.queueHeader(hexHeader(ZFIN))
			s.state = SenderWaitFinish
		}
	}
	return out
}

// PollEvent returns and consumes the next pending lifecycle event.
func (s *Sender) PollEvent() (Event, bool) {
	return s.events.pop()
}

// FileName returns the name of the file in flight.
func (s *Sender) FileName() string { return s.fileName }

// FileSize returns the size of the file in flight.
func (s *Sender) FileSize() int64 { return s.fileSize }

func (s *Sender) queueHeader(h Header) {
	s.logger.Debug("sender: queue %s %s count=%d", h.Encoding, FrameTypeName(h.Frame), h.Count())
	s.out = append(s.out, h.Encode()...)
}

// queueFileHeader emits the ZFILE announcement: a binary header
// followed by a ZCRCW metadata subpacket carrying name and size.
func (s *Sender) queueFileHeader() {
	s.queueHeader(binHeader(ZFILE, s.crc32Mode))
	s.out = appendSubpacket(s.out, BuildFileInfo(s.fileName, s.fileSize), ZCRCW, s.crc32Mode)
}

func (s *Sender) handleHeader(h Header) error {
	s.logger.Debug("sender: got %s %s count=%d state=%s", h.Encoding, FrameTypeName(h.Frame), h.Count(), s.state)

	switch h.Frame {
	case ZRINIT:
		s.negotiate(h)
		switch s.state {
		case SenderWaitReceiverInit:
			if s.hasFile {
				s.queueFileHeader()
				s.state = SenderWaitFilePos
			} else if s.finishRequested {
				s.queueHeader(hexHeader(ZFIN))
				s.state = SenderWaitFinish
			} else {
				s.state = SenderReadyForFile
			}
		case SenderWaitFileDone:
			if err := s.events.push(Event{Type: EventFileComplete, Name: s.fileName, Size: s.fileSize}); err != nil {
				return err
			}
			s.hasFile = false
			if s.finishRequested {
				s.queueHeader(hexHeader(ZFIN))
				s.state = SenderWaitFinish
			} else {
				s.state = SenderReadyForFile
			}
		case SenderWaitFinish:
			s.closeSession()
		}

	case ZRPOS, ZACK:
		switch s.state {
		case SenderWaitReceiverInit:
			s.queueHeader(hexHeader(ZRQINIT))
		case SenderWaitFilePos, SenderWaitFileAck, SenderNeedFileData:
			s.startFrameGroup(int64(h.Count()))
		}

	case ZFIN:
		if s.state == SenderWaitFinish {
			s.closeSession()
		}

	default:
		if s.state == SenderWaitReceiverInit {
			// The peer is talking but missed our opener; announce again.
			s.queueHeader(hexHeader(ZRQINIT))
		}
	}
	return nil
}

// negotiate folds the receiver's ZRINIT capabilities into the window
// parameters: the subpacket size is capped by the advertised buffer,
// and the subpackets-per-window count by how many of them fit in that
// buffer: one, unless the receiver can overlap I/O.
func (s *Sender) negotiate(h Header) {
	rxBuf := int(binary.LittleEndian.Uint16(h.Flags[:2]))
	s.crc32Mode = h.Flags[3]&CANFC32 != 0

	s.maxSubpacketSize = s.cfg.maxSubpacketSize
	if rxBuf > 0 && rxBuf < s.maxSubpacketSize {
		s.maxSubpacketSize = rxBuf
	}

	perAck := 1
	if h.Flags[3]&CANOVIO != 0 && rxBuf > 0 {
		perAck = rxBuf / s.maxSubpacketSize
	}
	if perAck < 1 {
		perAck = 1
	}
	if perAck > s.cfg.maxSubpacketsPerAck {
		perAck = s.cfg.maxSubpacketsPerAck
	}
	s.maxSubpacketsPerAck = perAck

	s.logger.Debug("sender: negotiated subpacket=%d perAck=%d crc32=%v (rxbuf=%d)",
		s.maxSubpacketSize, s.maxSubpacketsPerAck, s.crc32Mode, rxBuf)
}

// startFrameGroup reacts to a position report: past the end of the file
// it emits ZEOF, otherwise it opens a new windowed ZDATA group and asks
// the caller for the first chunk.
func (s *Sender) startFrameGroup(offset int64) {
	if offset >= s.fileSize {
		s.queueHeader(binHeader(ZEOF, s.crc32Mode).WithCount(uint32(offset)))
		s.pending = nil
		s.state = SenderWaitFileDone
		return
	}

	remaining := s.fileSize - offset
	groups := (remaining + int64(s.maxSubpacketSize) - 1) / int64(s.maxSubpacketSize)
	s.frameRemaining = s.maxSubpacketsPerAck
	if groups < int64(s.frameRemaining) {
		s.frameRemaining = int(groups)
	}
	s.frameNeedsHeader = true

	chunk := remaining
	if chunk > int64(s.maxSubpacketSize) {
		chunk = int64(s.maxSubpacketSize)
	}
	s.pending = &FileRequest{Offset: offset, Len: int(chunk)}
	s.state = SenderNeedFileData
}

func (s *Sender) closeSession() {
	s.out = append(s.out, sessionTrailer...)
	s.state = SenderDone
	// The queue cannot be full here: feeding stops while it is.
	_ = s.events.push(Event{Type: EventSessionComplete})
}
