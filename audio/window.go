// Package audio keeps a rolling window of microphone samples and turns it
// into a laughter score on a fixed cadence.
package audio

import "sync"

// Window is a fixed-length rolling buffer of mono samples, most recent last.
// It always holds exactly Len() samples; before any input those are zeros.
//
// Ingest is called from the audio device callback and Snapshot from the
// classification loop, so both take the lock. Neither allocates on the
// ingest path and both are O(len).
type Window struct {
	mu     sync.Mutex
	buf    []float32
	head   int // index of the oldest sample
	filled int // samples ingested so far, capped at len(buf)
}

func NewWindow(length int) *Window {
	return &Window{buf: make([]float32, length)}
}

func (w *Window) Len() int { return len(w.buf) }

// Ingest folds new samples into the window, discarding the oldest len(x).
// When len(x) >= Len() the window is replaced by the last Len() samples of x.
func (w *Window) Ingest(x []float32) {
	n := len(x)
	if n == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	size := len(w.buf)
	if n >= size {
		copy(w.buf, x[n-size:])
		w.head = 0
		w.filled = size
		return
	}
	// write over the oldest n slots, wrapping at most once
	k := copy(w.buf[w.head:], x)
	copy(w.buf, x[k:])
	w.head = (w.head + n) % size
	w.filled = min(size, w.filled+n)
}

// Snapshot copies the window into dst (reallocated if too small), oldest
// first, and returns it.
func (w *Window) Snapshot(dst []float32) []float32 {
	w.mu.Lock()
	defer w.mu.Unlock()

	size := len(w.buf)
	if cap(dst) < size {
		dst = make([]float32, size)
	}
	dst = dst[:size]
	k := copy(dst, w.buf[w.head:])
	copy(dst[k:], w.buf[:w.head])
	return dst
}

// Filled reports how many of the window's samples came from real input.
func (w *Window) Filled() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filled
}
