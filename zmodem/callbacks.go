package zmodem

import (
	"io"
	"time"
)

// Callbacks provides hooks for session-level transfer events. All
// fields are optional; nil callbacks fall back to defaults.
type Callbacks struct {
	// OnFilePrompt is called before an incoming file is accepted.
	// Return false to skip it (the session aborts, as skipping is not
	// part of the engine's negotiated surface), or an error to abort.
	OnFilePrompt func(name string, size int64) (bool, error)

	// OnFileStart is called when a file transfer starts.
	OnFileStart func(name string, size int64)

	// OnProgress is called periodically during a transfer with the
	// bytes moved so far, the total (0 when unknown), and the rate in
	// bytes per second.
	OnProgress func(name string, transferred, total int64, rate float64)

	// OnFileComplete is called when a file finishes.
	OnFileComplete func(name string, transferred int64, elapsed time.Duration)

	// OnSessionComplete is called when the ZFIN exchange finishes.
	OnSessionComplete func()

	// OnFileOpen overrides how the sending session opens a source file.
	OnFileOpen func(path string) (io.ReaderAt, int64, error)

	// OnFileCreate overrides how the receiving session creates a
	// destination file.
	OnFileCreate func(name string, size int64) (io.WriteCloser, error)
}

// defaultCallbacks returns callbacks that accept every file and report
// nothing.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFilePrompt:      func(string, int64) (bool, error) { return true, nil },
		OnFileStart:       func(string, int64) {},
		OnProgress:        func(string, int64, int64, float64) {},
		OnFileComplete:    func(string, int64, time.Duration) {},
		OnSessionComplete: func() {},
	}
}

// mergeCallbacks overlays user callbacks on the defaults. The file
// operation hooks stay nil unless set; the session falls back to the
// filesystem for those.
func mergeCallbacks(user *Callbacks) *Callbacks {
	merged := defaultCallbacks()
	if user == nil {
		return merged
	}
	if user.OnFilePrompt != nil {
		merged.OnFilePrompt = user.OnFilePrompt
	}
	if user.OnFileStart != nil {
		merged.OnFileStart = user.OnFileStart
	}
	if user.OnProgress != nil {
		merged.OnProgress = user.OnProgress
	}
	if user.OnFileComplete != nil {
		merged.OnFileComplete = user.OnFileComplete
	}
	if user.OnSessionComplete != nil {
		merged.OnSessionComplete = user.OnSessionComplete
	}
	merged.OnFileOpen = user.OnFileOpen
	merged.OnFileCreate = user.OnFileCreate
	return merged
}
