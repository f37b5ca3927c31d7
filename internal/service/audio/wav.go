package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/benbjohnson/clock"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// ErrInvalidWAV is returned for files that are not 16-bit PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV file")

// WAVFormat is the format block of a PCM WAV file.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// WAVDevice replays a WAV file in real time, looping at the end, as if it
// were a microphone. The device id passed to Open overrides Path when set.
type WAVDevice struct {
	Path  string
	Clock clock.Clock
}

// NewWAVDevice returns a device that replays the file at path.
func NewWAVDevice(path string) *WAVDevice {
	return &WAVDevice{Path: path, Clock: clock.New()}
}

// Name implements Device.
func (d *WAVDevice) Name() string { return "wav" }

// Open implements Device.
func (d *WAVDevice) Open(deviceID string, loop bool, bufferSeconds, sampleRate int) (Clip, error) {
	path := d.Path
	if deviceID != "" {
		path = deviceID
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer f.Close()

	format, samples, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
	if int(format.SampleRate) != sampleRate {
		return nil, fmt.Errorf("%w: %s is %dHz, capture wants %dHz",
			ErrDeviceUnavailable, path, format.SampleRate, sampleRate)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has no audio", ErrDeviceUnavailable, path)
	}

	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}

	next := 0
	src := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = samples[next]
			next = (next + 1) % len(samples)
		}
		return out
	}
	return startFeeder(clk, newRing(bufferSeconds*sampleRate, 1, loop), sampleRate, src), nil
}

// ReadWAV parses a 16-bit PCM WAV stream and returns its samples downmixed to mono.
func ReadWAV(r io.Reader) (WAVFormat, []float32, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVFormat{}, nil, fmt.Errorf("%w: read header: %v", ErrInvalidWAV, err)
	}

	// Validate it's a WAV file
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, nil, fmt.Errorf("%w: missing RIFF/WAVE tag", ErrInvalidWAV)
	}

	format := WAVFormat{
		AudioFormat:   binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if format.AudioFormat != 1 { // PCM
		return format, nil, fmt.Errorf("%w: only PCM format supported, got %d", ErrInvalidWAV, format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return format, nil, fmt.Errorf("%w: only 16-bit samples supported, got %d", ErrInvalidWAV, format.BitsPerSample)
	}
	if format.Channels == 0 {
		return format, nil, fmt.Errorf("%w: zero channels", ErrInvalidWAV)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return format, nil, fmt.Errorf("%w: read data: %v", ErrInvalidWAV, err)
	}

	channels := int(format.Channels)
	frames := len(data) / (2 * channels)
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(data[(i*channels+ch)*2:]))
			sum += float32(v) / math.MaxInt16
		}
		samples[i] = sum / float32(channels)
	}
	return format, samples, nil
}
