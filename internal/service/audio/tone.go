package audio

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// ToneDevice generates a sine wave in real time, alternating bursts of tone
// with silent pauses so that silence detection sees utterance boundaries.
// It stands in for a microphone on machines without one.
type ToneDevice struct {
	Frequency float64       // Hz
	Amplitude float64       // 0..1
	Burst     time.Duration // Tone length; continuous when zero
	Pause     time.Duration // Silence between bursts
	Clock     clock.Clock
}

// NewToneDevice returns a 440Hz tone at a quarter of full scale, 3s on and 2s off.
func NewToneDevice() *ToneDevice {
	return &ToneDevice{
		Frequency: 440,
		Amplitude: 0.25,
		Burst:     3 * time.Second,
		Pause:     2 * time.Second,
		Clock:     clock.New(),
	}
}

// Name implements Device.
func (d *ToneDevice) Name() string { return "tone" }

// Open implements Device. The device id is ignored.
func (d *ToneDevice) Open(_ string, loop bool, bufferSeconds, sampleRate int) (Clip, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}

	burst := int(d.Burst.Seconds() * float64(sampleRate))
	period := burst + int(d.Pause.Seconds()*float64(sampleRate))
	step := 2 * math.Pi * d.Frequency / float64(sampleRate)
	phase := 0.0
	frame := 0

	src := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			if burst == 0 || frame%period < burst {
				out[i] = float32(d.Amplitude * math.Sin(phase))
			}
			phase = math.Mod(phase+step, 2*math.Pi)
			frame++
			if period > 0 && frame == period {
				frame = 0
			}
		}
		return out
	}
	return startFeeder(clk, newRing(bufferSeconds*sampleRate, 1, loop), sampleRate, src), nil
}
