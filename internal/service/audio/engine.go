// Package audio implements double-buffered microphone capture.
//
// A Session owns a ring buffer that the device fills continuously. The buffer
// is split into a front half [0, half) and a back half [half, capacity). Each
// time the device write cursor completes the half the session is waiting for,
// exactly one Chunk carrying that half is emitted and the expectation flips.
// Between polls the session sleeps for the time the device needs to finish
// the pending half, so the loop never spins.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
)

// Capture errors.
var (
	ErrDeviceUnavailable  = errors.New("capture device unavailable")
	ErrDeviceDisconnected = errors.New("capture device disconnected")
	ErrInvalidBuffer      = errors.New("invalid capture buffer")
	ErrSessionStopped     = errors.New("capture session stopped")
)

// Engine starts capture sessions on a Device.
type Engine struct {
	device  Device
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEngine creates a capture engine. A nil clock uses wall time and nil
// metrics uses metrics.DefaultMetrics.
func NewEngine(device Device, clk clock.Clock, m *metrics.Metrics) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Engine{
		device:  device,
		clock:   clk,
		metrics: m,
		logger:  logging.WithComponent("capture"),
	}
}

// Start opens the device with a looping buffer of bufferSeconds*sampleRate
// frames. The capacity must be even so both halves hold the same number of
// frames.
func (e *Engine) Start(deviceID string, bufferSeconds, sampleRate int) (*Session, error) {
	capacity := bufferSeconds * sampleRate
	if bufferSeconds <= 0 || sampleRate <= 0 || capacity/2 == 0 {
		return nil, fmt.Errorf("%w: %ds at %dHz", ErrInvalidBuffer, bufferSeconds, sampleRate)
	}
	if capacity%2 != 0 {
		return nil, fmt.Errorf("%w: odd capacity %d frames (%ds at %dHz)", ErrInvalidBuffer, capacity, bufferSeconds, sampleRate)
	}
	if e.device == nil {
		return nil, fmt.Errorf("%w: no device backend", ErrDeviceUnavailable)
	}

	clip, err := e.device.Open(deviceID, true, bufferSeconds, sampleRate)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if clip == nil {
		return nil, fmt.Errorf("%w: device %q returned no clip", ErrDeviceUnavailable, deviceID)
	}

	channels := clip.Channels()
	if channels <= 0 {
		channels = 1
	}
	if n := clip.Samples(); n > 0 {
		if n%2 != 0 {
			clip.Close()
			return nil, fmt.Errorf("%w: device buffer of %d frames is odd", ErrInvalidBuffer, n)
		}
		capacity = n
	}

	s := &Session{
		DeviceID:    deviceID,
		SampleRate:  sampleRate,
		Capacity:    capacity,
		Half:        capacity / 2,
		Channels:    channels,
		clip:        clip,
		clock:       e.clock,
		metrics:     e.metrics,
		expectFront: true,
		logger: e.logger.With().
			Str("device", deviceName(deviceID)).
			Str("backend", e.device.Name()).
			Logger(),
	}
	s.logger.Info().
		Int("capacity", s.Capacity).
		Int("half", s.Half).
		Int("sampleRate", sampleRate).
		Int("channels", channels).
		Msg("Capture started")
	return s, nil
}

// Session is one running capture. It is not restartable; start a new one instead.
type Session struct {
	DeviceID   string
	SampleRate int
	Capacity   int // frames
	Half       int // frames, Capacity/2
	Channels   int

	clip    Clip
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu          sync.Mutex
	expectFront bool
	primed      bool
	stopped     bool
	seq         uint64
}

// Poll runs one scheduling tick. It returns a chunk when the expected half
// has completed, otherwise the time to wait before the next tick. The first
// tick after Start only primes the session and never evaluates completion.
// Device loss stops the session and returns ErrDeviceDisconnected.
func (s *Session) Poll() (*Chunk, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, 0, ErrSessionStopped
	}

	pos := s.clip.Position()
	if pos > s.Capacity || !s.clip.IsCapturing() {
		s.stopLocked()
		s.metrics.RecordDeviceLoss()
		s.logger.Error().Int("position", pos).Int("capacity", s.Capacity).Msg("Microphone disconnected")
		return nil, 0, fmt.Errorf("%w: cursor %d of %d", ErrDeviceDisconnected, pos, s.Capacity)
	}

	if !s.primed {
		s.primed = true
		return nil, 0, nil
	}

	if (s.expectFront && pos >= s.Half) || (!s.expectFront && pos < s.Half) {
		offset := 0
		if !s.expectFront {
			offset = s.Half
		}
		samples := make([]float32, s.Half*s.Channels)
		s.clip.ReadAt(samples, offset)

		s.seq++
		chunk := &Chunk{
			Seq:        s.seq,
			Offset:     offset,
			Samples:    samples,
			SampleRate: s.SampleRate,
			Channels:   s.Channels,
			Peak:       peakAmplitude(samples),
			EmittedAt:  s.clock.Now(),
		}
		s.expectFront = !s.expectFront

		s.metrics.RecordChunk(chunk.Peak)
		s.logger.Debug().
			Uint64("seq", chunk.Seq).
			Int("offset", offset).
			Float32("peak", chunk.Peak).
			Msg("Chunk emitted")
		return chunk, 0, nil
	}

	target := s.Half
	if !s.expectFront {
		target = s.Capacity
	}
	wait := time.Duration(target-pos) * time.Second / time.Duration(s.SampleRate)
	return nil, wait, nil
}

// Run polls until ctx is done, Stop is called, or the device is lost, sending
// each chunk to out in emission order. Stop and cancellation return nil.
func (s *Session) Run(ctx context.Context, out chan<- Chunk) error {
	defer s.Stop()

	for {
		chunk, wait, err := s.Poll()
		if err != nil {
			if errors.Is(err, ErrSessionStopped) {
				return nil
			}
			return err
		}

		if chunk != nil {
			select {
			case out <- *chunk:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if wait <= 0 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}

		s.metrics.RecordCaptureWait(wait)
		timer := s.clock.Timer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

// Stop halts the session and releases the device. Calling it again is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Stopped reports whether the session has ended.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Emitted returns the number of chunks emitted so far.
func (s *Session) Emitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) stopLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	if err := s.clip.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to release capture device")
	}
	s.logger.Info().Uint64("chunks", s.seq).Msg("Capture stopped")
}

func deviceName(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
