package zmodem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Session binds a state machine to an io.ReadWriter transport and runs
// the cooperative pump the engine expects: read from the peer, feed the
// machine, drain the machine, write to the peer. One Session runs one
// transfer direction at a time.
type Session struct {
	transport io.ReadWriter
	config    *SessionConfig
	callbacks *Callbacks
	logger    Logger
}

// SessionConfig holds session tuning knobs.
type SessionConfig struct {
	// MaxSubpacketSize and MaxSubpacketsPerAck are handed to the engine.
	MaxSubpacketSize    int
	MaxSubpacketsPerAck int

	// ReadChunk is the transport read buffer size.
	ReadChunk int

	// PollInterval slices blocking transport reads so cancellation is
	// honored on transports that support read deadlines.
	PollInterval time.Duration

	// ProgressInterval rate-limits OnProgress callbacks.
	ProgressInterval time.Duration
}

// DefaultSessionConfig returns the defaults: strict ZMODEM sizing and
// 100ms progress reporting.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		MaxSubpacketSize:    DefaultSubpacketSize,
		MaxSubpacketsPerAck: DefaultPerAck,
		ReadChunk:           4096,
		PollInterval:        200 * time.Millisecond,
		ProgressInterval:    100 * time.Millisecond,
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionConfig replaces the session configuration.
func WithSessionConfig(config *SessionConfig) SessionOption {
	return func(s *Session) { s.config = config }
}

// WithCallbacks installs transfer event callbacks.
func WithCallbacks(callbacks *Callbacks) SessionOption {
	return func(s *Session) { s.callbacks = mergeCallbacks(callbacks) }
}

// WithSessionLogger installs a protocol trace logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a session over the given transport.
func NewSession(transport io.ReadWriter, opts ...SessionOption) *Session {
	s := &Session{
		transport: transport,
		config:    DefaultSessionConfig(),
		callbacks: defaultCallbacks(),
		logger:    NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errTransferDone signals a clean transfer completion through the
// errgroup, so the reader goroutine gets cancelled.
var errTransferDone = errors.New("zmodem: transfer complete")

// Send transfers the named files to the remote receiver and closes the
// session. The remote side must be running a ZMODEM receiver (rz).
func (s *Session) Send(ctx context.Context, paths ...string) error {
	eng := NewSender(true, s.engineOptions()...)
	return s.pump(ctx, func(ctx context.Context, incoming <-chan []byte) error {
		return s.runSend(ctx, eng, incoming, paths)
	})
}

// Receive accepts files from a remote sender into dir. The remote side
// must be running a ZMODEM sender (sz).
func (s *Session) Receive(ctx context.Context, dir string) error {
	eng := NewReceiver(s.engineOptions()...)
	return s.pump(ctx, func(ctx context.Context, incoming <-chan []byte) error {
		return s.runReceive(ctx, eng, incoming, dir)
	})
}

// Abort writes the cancel sequence to the peer.
func (s *Session) Abort() error {
	_, err := s.transport.Write(AbortSequence)
	return err
}

func (s *Session) engineOptions() []Option {
	return []Option{
		WithMaxSubpacketSize(s.config.MaxSubpacketSize),
		WithMaxSubpacketsPerAck(s.config.MaxSubpacketsPerAck),
		WithEngineLogger(s.logger),
	}
}

// pump runs the transport reader and the engine loop under one
// errgroup. The engine loop ends a successful transfer with
// errTransferDone, which cancels the reader and maps to nil.
func (s *Session) pump(ctx context.Context, run func(context.Context, <-chan []byte) error) error {
	g, ctx := errgroup.WithContext(ctx)
	incoming := make(chan []byte, 8)

	g.Go(func() error { return s.readLoop(ctx, incoming) })
	g.Go(func() error { return run(ctx, incoming) })

	err := g.Wait()
	if errors.Is(err, errTransferDone) {
		return nil
	}
	return err
}

// readLoop moves transport bytes onto the incoming channel. On
// transports with read deadlines (net.Conn, net.Pipe, SSH channels
// wrapped in a deadline adapter) reads are sliced by PollInterval so
// the loop notices cancellation; otherwise the caller must close the
// transport to unblock it.
func (s *Session) readLoop(ctx context.Context, incoming chan<- []byte) error {
	type deadlineSetter interface {
		SetReadDeadline(time.Time) error
	}
	ds, sliced := s.transport.(deadlineSetter)
	buf := make([]byte, s.config.ReadChunk)

	for {
		if sliced {
			_ = ds.SetReadDeadline(time.Now().Add(s.config.PollInterval))
		}
		n, err := s.transport.Read(buf)
		if n > 0 {
			s.logger.Debug("session: %s", traceWire("rx", buf[:n]))
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case incoming <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if sliced && isTimeout(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
					continue
				}
			}
			return err
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Session) write(out []byte) error {
	s.logger.Debug("session: %s", traceWire("tx", out))
	_, err := s.transport.Write(out)
	return err
}

// runSend drives a Sender over the transport: drain wire bytes, answer
// file requests from the current source file, react to lifecycle
// events, and feed the incoming stream.
func (s *Session) runSend(ctx context.Context, eng *Sender, incoming <-chan []byte, paths []string) error {
	var (
		pendingIn []byte
		src       io.ReaderAt
		closer    io.Closer
		next      int
		done      bool
	)
	tracker := newProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)

	openNext := func() error {
		for next < len(paths) {
			path := paths[next]
			next++
			ra, size, cl, err := s.openSource(path)
			if err != nil {
				return err
			}
			name := filepath.Base(path)
			if err := eng.StartFile(name, size); err != nil {
				if cl != nil {
					cl.Close()
				}
				return err
			}
			src, closer = ra, cl
			s.callbacks.OnFileStart(name, size)
			tracker.start(name, size)
			return nil
		}
		src = nil
		return eng.FinishSession()
	}
	if err := openNext(); err != nil {
		return err
	}
	defer func() {
		if closer != nil {
			closer.Close()
		}
	}()

	for {
		if out := eng.DrainOutgoing(); len(out) > 0 {
			if err := s.write(out); err != nil {
				return err
			}
			continue
		}
		if done {
			return errTransferDone
		}

		if req, ok := eng.PollFile(); ok {
			buf := make([]byte, req.Len)
			n, err := src.ReadAt(buf, req.Offset)
			if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
				return fmt.Errorf("zmodem: reading source at %d: %w", req.Offset, err)
			}
			if err := eng.FeedFile(buf[:n]); err != nil {
				return err
			}
			tracker.update(req.Offset + int64(n))
			continue
		}

		progressed := false
		for {
			ev, ok := eng.PollEvent()
			if !ok {
				break
			}
			progressed = true
			switch ev.Type {
			case EventFileComplete:
				elapsed := tracker.finish()
				s.callbacks.OnFileComplete(ev.Name, ev.Size, elapsed)
				if closer != nil {
					closer.Close()
					closer = nil
				}
				if err := openNext(); err != nil {
					return err
				}
			case EventSessionComplete:
				s.callbacks.OnSessionComplete()
				done = true
			}
		}
		if progressed {
			continue
		}

		if len(pendingIn) == 0 {
			select {
			case pendingIn = <-incoming:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		n, err := eng.FeedIncoming(pendingIn)
		pendingIn = pendingIn[n:]
		if err != nil {
			return err
		}
	}
}

// runReceive drives a Receiver over the transport: drain wire bytes,
// create destination files as they are announced, spill verified data
// to disk, and feed the incoming stream.
func (s *Session) runReceive(ctx context.Context, eng *Receiver, incoming <-chan []byte, dir string) error {
	var (
		pendingIn []byte
		dst       io.WriteCloser
		done      bool
	)
	tracker := newProgressTracker(s.callbacks.OnProgress, s.config.ProgressInterval)
	defer func() {
		if dst != nil {
			dst.Close()
		}
	}()

	for {
		if out := eng.DrainOutgoing(); len(out) > 0 {
			if err := s.write(out); err != nil {
				return err
			}
			continue
		}
		if done {
			return errTransferDone
		}

		progressed := false
		for {
			ev, ok := eng.PollEvent()
			if !ok {
				break
			}
			progressed = true
			switch ev.Type {
			case EventFileStart:
				accept, err := s.callbacks.OnFilePrompt(ev.Name, ev.Size)
				if err != nil {
					return err
				}
				if !accept {
					return fmt.Errorf("zmodem: file %q declined", ev.Name)
				}
				w, err := s.createDest(dir, ev.Name, ev.Size)
				if err != nil {
					return err
				}
				dst = w
				s.callbacks.OnFileStart(ev.Name, ev.Size)
				tracker.start(ev.Name, ev.Size)
			case EventFileComplete:
				if dst != nil {
					if err := dst.Close(); err != nil {
						return err
					}
					dst = nil
				}
				elapsed := tracker.finish()
				s.callbacks.OnFileComplete(ev.Name, ev.Size, elapsed)
			case EventSessionComplete:
				s.callbacks.OnSessionComplete()
				done = true
			}
		}
		if progressed {
			continue
		}

		if data := eng.DrainFile(); len(data) > 0 {
			if dst == nil {
				return NewError(ErrUnsupported, "file data with no destination open")
			}
			if _, err := dst.Write(data); err != nil {
				return err
			}
			tracker.update(eng.Count())
			continue
		}

		if len(pendingIn) == 0 {
			select {
			case pendingIn = <-incoming:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		n, err := eng.FeedIncoming(pendingIn)
		pendingIn = pendingIn[n:]
		if err != nil {
			return err
		}
	}
}

func (s *Session) openSource(path string) (io.ReaderAt, int64, io.Closer, error) {
	if s.callbacks.OnFileOpen != nil {
		ra, size, err := s.callbacks.OnFileOpen(path)
		if err != nil {
			return nil, 0, nil, err
		}
		closer, _ := ra.(io.Closer)
		return ra, size, closer, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return f, info.Size(), f, nil
}

// createDest opens the destination for an incoming file. The announced
// name is reduced to its base component: remote names are untrusted and
// may carry path traversal.
func (s *Session) createDest(dir, name string, size int64) (io.WriteCloser, error) {
	if s.callbacks.OnFileCreate != nil {
		return s.callbacks.OnFileCreate(name, size)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(dir, filepath.Base(name)))
}
