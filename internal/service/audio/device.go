package audio

import (
	"errors"
	"sync"
)

// Device opens capture clips on an audio input.
type Device interface {
	// Open begins capturing into a ring buffer of bufferSeconds*sampleRate frames.
	// An empty deviceID selects the system default input. With loop set the write
	// cursor wraps to zero when it reaches the end of the buffer, otherwise
	// capture stops there.
	Open(deviceID string, loop bool, bufferSeconds, sampleRate int) (Clip, error)

	// Name returns the backend name (e.g. "malgo", "wav", "tone").
	Name() string
}

// Clip is a running capture into a fixed-size ring buffer.
type Clip interface {
	// Samples returns the buffer capacity in frames.
	Samples() int

	// Channels returns the number of interleaved channels per frame.
	Channels() int

	// Position returns the frame index the device will write next.
	Position() int

	// IsCapturing reports whether the device is still producing audio.
	IsCapturing() bool

	// ReadAt copies len(dst) samples starting at frame offset, wrapping at the end.
	ReadAt(dst []float32, offset int)

	// Close stops the device and releases it. Safe to call more than once.
	Close() error
}

var errRingClosed = errors.New("audio: ring buffer closed")

// ring is the shared ring buffer behind every Clip backend. Writers append
// frames at the cursor; readers copy arbitrary windows.
type ring struct {
	mu        sync.Mutex
	data      []float32
	frames    int
	channels  int
	pos       int
	loop      bool
	capturing bool
}

func newRing(frames, channels int, loop bool) *ring {
	return &ring{
		data:      make([]float32, frames*channels),
		frames:    frames,
		channels:  channels,
		loop:      loop,
		capturing: true,
	}
}

// write appends interleaved samples, returning errRingClosed once capture has ended.
func (r *ring) write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.capturing {
		return errRingClosed
	}
	for i := 0; i+r.channels <= len(samples); i += r.channels {
		copy(r.data[r.pos*r.channels:], samples[i:i+r.channels])
		r.pos++
		if r.pos == r.frames {
			if !r.loop {
				r.capturing = false
				return errRingClosed
			}
			r.pos = 0
		}
	}
	return nil
}

func (r *ring) halt() {
	r.mu.Lock()
	r.capturing = false
	r.mu.Unlock()
}

func (r *ring) Samples() int  { return r.frames }
func (r *ring) Channels() int { return r.channels }

func (r *ring) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *ring) IsCapturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

func (r *ring) ReadAt(dst []float32, offset int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := (offset % r.frames) * r.channels
	n := copy(dst, r.data[start:])
	for n < len(dst) {
		n += copy(dst[n:], r.data)
	}
}
