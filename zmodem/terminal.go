package zmodem

import (
	"bytes"
	"io"
	"sync"

	"github.com/armon/circbuf"
)

// Terminal stream detection. A remote "sz" announces itself with a
// ZRQINIT hex header and a remote "rz" with a ZRINIT hex header; both
// begin with the same preamble and differ in the first hex digit pair.
var (
	downloadSignature = []byte{ZPAD, ZPAD, ZDLE, ZHEX, '0', '0'} // ZRQINIT: remote wants to send
	uploadSignature   = []byte{ZPAD, ZPAD, ZDLE, ZHEX, '0', '1'} // ZRINIT: remote wants to receive
)

// scanWindow bounds how much trailing terminal output is kept for
// signature matching. Both signatures fit with room for fragmentation.
const scanWindow = 64

// TransferDirection tells a TerminalMonitor callback which side the
// remote end opened.
type TransferDirection int

const (
	// TransferIncoming: the remote is sending; run a Receive session.
	TransferIncoming TransferDirection = iota

	// TransferOutgoing: the remote is receiving; run a Send session.
	TransferOutgoing
)

func (d TransferDirection) String() string {
	if d == TransferIncoming {
		return "incoming"
	}
	return "outgoing"
}

// TerminalMonitor watches a terminal output stream for the start of a
// ZMODEM transfer. It is an io.Writer middleware: remote output is
// written through it on the way to the display, and when a transfer
// announcement appears in the stream the handler is invoked. The
// monitor keeps only a small ring of trailing bytes, so announcements
// split across arbitrary read boundaries are still found.
//
// The monitor does not run the transfer itself. The handler typically
// stops echoing terminal output and hands the underlying transport to a
// Session.
type TerminalMonitor struct {
	mu       sync.Mutex
	display  io.Writer
	ring     *circbuf.Buffer
	handler  func(TransferDirection)
	detected bool
}

// NewTerminalMonitor creates a monitor that forwards output to display
// and calls handler on the first transfer announcement. A nil display
// discards output.
func NewTerminalMonitor(display io.Writer, handler func(TransferDirection)) *TerminalMonitor {
	ring, _ := circbuf.NewBuffer(scanWindow)
	if display == nil {
		display = io.Discard
	}
	return &TerminalMonitor{
		display: display,
		ring:    ring,
		handler: handler,
	}
}

// Write forwards p to the display and scans for announcements.
func (m *TerminalMonitor) Write(p []byte) (int, error) {
	n, err := m.display.Write(p)
	if err != nil {
		return n, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.detected {
		m.ring.Write(p)
		window := m.ring.Bytes()
		switch {
		case bytes.Contains(window, downloadSignature):
			m.detected = true
			m.handler(TransferIncoming)
		case bytes.Contains(window, uploadSignature):
			m.detected = true
			m.handler(TransferOutgoing)
		}
	}
	return len(p), nil
}

// Detected reports whether an announcement has been seen since the
// last Reset.
func (m *TerminalMonitor) Detected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detected
}

// Reset re-arms the monitor after a transfer finishes.
func (m *TerminalMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detected = false
	m.ring.Reset()
}
