package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"voice-dialogue-service/internal/observability/metrics"
)

var testMetrics = metrics.DefaultMetrics

// scriptedClip replays a fixed sequence of write cursor positions, one per
// Position call. A negative entry reports the device as no longer capturing.
type scriptedClip struct {
	capacity  int
	script    []int
	next      int
	capturing bool
	closed    int
}

func newScriptedClip(capacity int, script ...int) *scriptedClip {
	return &scriptedClip{capacity: capacity, script: script, capturing: true}
}

func (c *scriptedClip) Samples() int  { return c.capacity }
func (c *scriptedClip) Channels() int { return 1 }

func (c *scriptedClip) Position() int {
	if c.next >= len(c.script) {
		return c.script[len(c.script)-1]
	}
	p := c.script[c.next]
	c.next++
	if p < 0 {
		c.capturing = false
		return 0
	}
	return p
}

func (c *scriptedClip) IsCapturing() bool { return c.capturing }

// ReadAt fills dst with the frame index of each sample.
func (c *scriptedClip) ReadAt(dst []float32, offset int) {
	for i := range dst {
		dst[i] = float32((offset + i) % c.capacity)
	}
}

func (c *scriptedClip) Close() error {
	c.closed++
	return nil
}

type stubDevice struct {
	clip   Clip
	err    error
	opened int
}

func (d *stubDevice) Name() string { return "stub" }

func (d *stubDevice) Open(string, bool, int, int) (Clip, error) {
	d.opened++
	return d.clip, d.err
}

// startScripted opens a 1s buffer at 8Hz, giving capacity 8 and half 4.
func startScripted(t *testing.T, script ...int) (*Session, *scriptedClip) {
	t.Helper()
	clip := newScriptedClip(8, script...)
	engine := NewEngine(&stubDevice{clip: clip}, clock.NewMock(), testMetrics)
	s, err := engine.Start("", 1, 8)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	return s, clip
}

func TestEngine_StartRejectsInvalidBuffer(t *testing.T) {
	tests := []struct {
		name          string
		bufferSeconds int
		sampleRate    int
	}{
		{"zero seconds", 0, 22050},
		{"zero rate", 2, 0},
		{"negative seconds", -1, 22050},
		{"zero half", 1, 1},
		{"odd capacity", 1, 11025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &stubDevice{clip: newScriptedClip(8, 0)}
			engine := NewEngine(device, clock.NewMock(), testMetrics)

			_, err := engine.Start("", tt.bufferSeconds, tt.sampleRate)
			if !errors.Is(err, ErrInvalidBuffer) {
				t.Errorf("expected ErrInvalidBuffer, got %v", err)
			}
			if device.opened != 0 {
				t.Errorf("expected device not opened, got %d opens", device.opened)
			}
		})
	}
}

func TestEngine_StartRejectsOddDeviceBuffer(t *testing.T) {
	clip := newScriptedClip(9, 0)
	engine := NewEngine(&stubDevice{clip: clip}, clock.NewMock(), testMetrics)

	_, err := engine.Start("", 1, 8)
	if !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("expected ErrInvalidBuffer, got %v", err)
	}
	if clip.closed != 1 {
		t.Errorf("expected clip closed once, got %d", clip.closed)
	}
}

func TestEngine_StartDeviceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		device Device
	}{
		{"nil clip", &stubDevice{}},
		{"open error", &stubDevice{err: errors.New("no such device")}},
		{"no backend", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(tt.device, clock.NewMock(), testMetrics)
			_, err := engine.Start("", 2, 22050)
			if !errors.Is(err, ErrDeviceUnavailable) {
				t.Errorf("expected ErrDeviceUnavailable, got %v", err)
			}
		})
	}
}

func TestSession_EmitsAlternatingHalves(t *testing.T) {
	// Cursor advances one frame per tick: 20 ticks capture 19 frames.
	script := make([]int, 20)
	for i := range script {
		script[i] = i % 8
	}
	s, _ := startScripted(t, script...)

	var offsets []int
	for range script {
		chunk, _, err := s.Poll()
		if err != nil {
			t.Fatalf("unexpected poll error: %v", err)
		}
		if chunk == nil {
			continue
		}
		if len(chunk.Samples) != s.Half {
			t.Errorf("expected %d samples, got %d", s.Half, len(chunk.Samples))
		}
		if chunk.Samples[0] != float32(chunk.Offset) {
			t.Errorf("expected chunk to start at frame %d, got %v", chunk.Offset, chunk.Samples[0])
		}
		if chunk.Seq != uint64(len(offsets)+1) {
			t.Errorf("expected seq %d, got %d", len(offsets)+1, chunk.Seq)
		}
		offsets = append(offsets, chunk.Offset)
	}

	want := []int{0, 4, 0, 4}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d chunks, got %d (%v)", len(want), len(offsets), offsets)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("chunk %d: expected offset %d, got %d", i, want[i], offsets[i])
		}
	}
}

func TestSession_FirstTickDoesNotEmit(t *testing.T) {
	s, _ := startScripted(t, 6, 6)

	chunk, wait, err := s.Poll()
	if err != nil || chunk != nil || wait != 0 {
		t.Fatalf("expected empty priming tick, got chunk=%v wait=%v err=%v", chunk, wait, err)
	}

	chunk, _, err = s.Poll()
	if err != nil {
		t.Fatalf("unexpected poll error: %v", err)
	}
	if chunk == nil || chunk.Offset != 0 {
		t.Errorf("expected front chunk on second tick, got %v", chunk)
	}
}

func TestSession_WaitsUntilHalfCompletes(t *testing.T) {
	s, _ := startScripted(t, 0, 0, 1, 2, 3)

	if _, _, err := s.Poll(); err != nil {
		t.Fatalf("unexpected priming error: %v", err)
	}

	want := []time.Duration{
		500 * time.Millisecond,
		375 * time.Millisecond,
		250 * time.Millisecond,
		125 * time.Millisecond,
	}
	var prev time.Duration
	for i, expected := range want {
		chunk, wait, err := s.Poll()
		if err != nil {
			t.Fatalf("unexpected poll error: %v", err)
		}
		if chunk != nil {
			t.Fatalf("tick %d: expected no chunk, got offset %d", i, chunk.Offset)
		}
		if wait != expected {
			t.Errorf("tick %d: expected wait %v, got %v", i, expected, wait)
		}
		if i > 0 && wait >= prev {
			t.Errorf("tick %d: expected wait below %v, got %v", i, prev, wait)
		}
		prev = wait
	}
}

func TestSession_WaitsForBackHalfUntilWrap(t *testing.T) {
	s, _ := startScripted(t, 0, 4, 5)
	s.Poll()

	chunk, _, err := s.Poll()
	if err != nil || chunk == nil {
		t.Fatalf("expected front chunk, got chunk=%v err=%v", chunk, err)
	}

	chunk, wait, err := s.Poll()
	if err != nil {
		t.Fatalf("unexpected poll error: %v", err)
	}
	if chunk != nil {
		t.Errorf("expected no chunk, got offset %d", chunk.Offset)
	}
	if wait != 375*time.Millisecond {
		t.Errorf("expected wait 375ms, got %v", wait)
	}
}

func TestSession_DeviceLoss(t *testing.T) {
	tests := []struct {
		name   string
		script []int
		polls  int
	}{
		{"cursor beyond capacity", []int{0, 2, 9}, 3},
		{"device stopped capturing", []int{0, 2, -1}, 3},
		{"lost before first tick", []int{-1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clip := startScripted(t, tt.script...)

			var err error
			for i := 0; i < tt.polls; i++ {
				_, _, err = s.Poll()
			}
			if !errors.Is(err, ErrDeviceDisconnected) {
				t.Fatalf("expected ErrDeviceDisconnected, got %v", err)
			}
			if clip.closed != 1 {
				t.Errorf("expected device released once, got %d", clip.closed)
			}

			chunk, _, err := s.Poll()
			if chunk != nil {
				t.Errorf("expected no chunk after device loss, got offset %d", chunk.Offset)
			}
			if !errors.Is(err, ErrSessionStopped) {
				t.Errorf("expected ErrSessionStopped, got %v", err)
			}
		})
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	s, clip := startScripted(t, 0, 4)

	s.Stop()
	s.Stop()

	if clip.closed != 1 {
		t.Errorf("expected device released once, got %d", clip.closed)
	}
	if !s.Stopped() {
		t.Error("expected session to report stopped")
	}
	if _, _, err := s.Poll(); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("expected ErrSessionStopped, got %v", err)
	}
}

func TestSession_RunDeliversInOrderUntilDeviceLoss(t *testing.T) {
	s, clip := startScripted(t, 0, 6, 1, 5, -1)
	out := make(chan Chunk, 8)

	err := s.Run(context.Background(), out)
	if !errors.Is(err, ErrDeviceDisconnected) {
		t.Fatalf("expected ErrDeviceDisconnected, got %v", err)
	}
	close(out)

	var offsets []int
	for c := range out {
		offsets = append(offsets, c.Offset)
	}
	want := []int{0, 4, 0}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), offsets)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("chunk %d: expected offset %d, got %d", i, want[i], offsets[i])
		}
	}
	if clip.closed != 1 {
		t.Errorf("expected device released once, got %d", clip.closed)
	}
}

func TestSession_RunReturnsNilOnCancel(t *testing.T) {
	s, clip := startScripted(t, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx, make(chan Chunk)); err != nil {
		t.Errorf("expected nil error on cancel, got %v", err)
	}
	if clip.closed != 1 {
		t.Errorf("expected device released on cancel, got %d", clip.closed)
	}
}

func TestSession_RunSleepsOnClock(t *testing.T) {
	clip := newScriptedClip(8, 0, 2, 4)
	mock := clock.NewMock()
	engine := NewEngine(&stubDevice{clip: clip}, mock, testMetrics)
	s, err := engine.Start("", 1, 8)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Chunk, 1)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	// Cursor at 2 schedules a 250ms sleep before the front half completes.
	deadline := time.After(2 * time.Second)
	for {
		mock.Add(250 * time.Millisecond)
		select {
		case c := <-out:
			if c.Offset != 0 {
				t.Errorf("expected front chunk, got offset %d", c.Offset)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("expected nil error, got %v", err)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for chunk")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
