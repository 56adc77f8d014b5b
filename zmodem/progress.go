package zmodem

import "time"

// progressTracker rate-limits OnProgress callbacks and computes the
// instantaneous transfer rate.
type progressTracker struct {
	name      string
	total     int64
	moved     int64
	started   time.Time
	lastCall  time.Time
	lastMoved int64

	interval time.Duration
	callback func(name string, transferred, total int64, rate float64)
}

func newProgressTracker(callback func(string, int64, int64, float64), interval time.Duration) *progressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &progressTracker{interval: interval, callback: callback}
}

// start begins tracking a new file.
func (pt *progressTracker) start(name string, total int64) {
	now := time.Now()
	pt.name = name
	pt.total = total
	pt.moved = 0
	pt.started = now
	pt.lastCall = now
	pt.lastMoved = 0
}

// update records the new byte count and fires the callback when the
// reporting interval has elapsed.
func (pt *progressTracker) update(moved int64) {
	pt.moved = moved
	now := time.Now()
	elapsed := now.Sub(pt.lastCall)
	if elapsed < pt.interval {
		return
	}
	rate := float64(pt.moved-pt.lastMoved) / elapsed.Seconds()
	pt.lastCall = now
	pt.lastMoved = pt.moved
	pt.callback(pt.name, pt.moved, pt.total, rate)
}

// finish fires a final callback with the overall rate and returns the
// elapsed transfer time.
func (pt *progressTracker) finish() time.Duration {
	elapsed := time.Since(pt.started)
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(pt.moved) / secs
	}
	pt.callback(pt.name, pt.moved, pt.total, rate)
	return elapsed
}
