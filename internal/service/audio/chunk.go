package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Chunk is one half-buffer of captured audio. Chunks are immutable once emitted.
type Chunk struct {
	Seq        uint64    // Emission order within the session, starting at 1
	Offset     int       // Frame offset of the half inside the ring buffer (0 or half)
	Samples    []float32 // Interleaved samples, Frames()*Channels long
	SampleRate int
	Channels   int
	Peak       float32 // Max absolute sample value, diagnostic only
	EmittedAt  time.Time
}

// Frames returns the number of frames in the chunk.
func (c Chunk) Frames() int {
	if c.Channels <= 0 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the wall-clock duration of audio carried by the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// PCM16 encodes the samples as little-endian signed 16-bit PCM.
func (c Chunk) PCM16() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return out
}

func peakAmplitude(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
