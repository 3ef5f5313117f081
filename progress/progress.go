// Package progress accounts transferred bytes and reports a moving
// transfer rate over a trailing time window.
package progress

import (
	"io"
	"sync"
	"time"
)

// Sink receives byte counts from uploads and downloads.
type Sink interface {
	Add(n int64)
}

type nop struct{}

func (nop) Add(int64) {}

// Nop discards everything.
var Nop Sink = nop{}

// Sample is the number of bytes transferred during Elapsed.
type Sample struct {
	Bytes   int64
	Elapsed time.Duration
}

// RelevantSpeed returns bytes per second over the trailing window of
// samples, which are ordered oldest first.  The oldest sample that
// straddles the window boundary contributes pro rata.
func RelevantSpeed(samples []Sample, window time.Duration) float64 {
	var bytes float64
	var elapsed time.Duration
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		if window > 0 && elapsed+s.Elapsed > window {
			remain := window - elapsed
			if s.Elapsed > 0 {
				bytes += float64(s.Bytes) * float64(remain) / float64(s.Elapsed)
			}
			elapsed = window
			break
		}
		bytes += float64(s.Bytes)
		elapsed += s.Elapsed
	}
	if elapsed <= 0 {
		return 0
	}
	return bytes / elapsed.Seconds()
}

// Tracker is a Sink that keeps totals and a trailing window of samples.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	total   int64
	done    int64
	window  time.Duration
	samples []Sample
	last    time.Time
	now     func() time.Time
}

// NewTracker expects total bytes and reports speed over window.
func NewTracker(total int64, window time.Duration) *Tracker {
	return newTracker(total, window, time.Now)
}

func newTracker(total int64, window time.Duration, now func() time.Time) *Tracker {
	return &Tracker{total: total, window: window, now: now, last: now()}
}

// Add records n more bytes.
func (t *Tracker) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.samples = append(t.samples, Sample{Bytes: n, Elapsed: now.Sub(t.last)})
	t.last = now
	t.done += n
	t.trim()
}

// trim drops samples that lie entirely outside the window, keeping the
// one that straddles its boundary.
func (t *Tracker) trim() {
	var elapsed time.Duration
	for i := len(t.samples) - 1; i >= 0; i-- {
		elapsed += t.samples[i].Elapsed
		if elapsed >= t.window {
			t.samples = t.samples[i:]
			return
		}
	}
}

// Speed is the moving transfer rate in bytes per second.
func (t *Tracker) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return RelevantSpeed(t.samples, t.window)
}

// Done is the number of bytes recorded so far.
func (t *Tracker) Done() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Percent is Done relative to the expected total.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total <= 0 {
		return 100
	}
	return float64(t.done) * 100 / float64(t.total)
}

type reader struct {
	io.Reader
	sink Sink
}

func (r reader) Read(buf []byte) (n int, err error) {
	n, err = r.Reader.Read(buf)
	if n > 0 {
		r.sink.Add(int64(n))
	}
	return
}

// NewReader reports every byte read from rd to sink.
func NewReader(rd io.Reader, sink Sink) io.Reader {
	if sink == nil {
		return rd
	}
	return reader{rd, sink}
}

type writer struct {
	io.Writer
	sink Sink
}

func (w writer) Write(buf []byte) (n int, err error) {
	n, err = w.Writer.Write(buf)
	if n > 0 {
		w.sink.Add(int64(n))
	}
	return
}

// NewWriter reports every byte written to wr to sink.
func NewWriter(wr io.Writer, sink Sink) io.Writer {
	if sink == nil {
		return wr
	}
	return writer{wr, sink}
}
