// Package mock provides a mock STT adapter for running without cloud credentials.
// It simulates streaming recognition with progressive interim results and exactly
// one final result per utterance. With silence detection on, a chunk whose peak
// falls below the silence threshold ends the utterance in progress.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/stt"
)

// ErrSimulatedFailure is reported after Config.FailAfter chunks.
var ErrSimulatedFailure = errors.New("simulated recognizer failure")

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"turn", "turn on", "turn on the"},
		Final:      "turn on the lights",
		Confidence: 0.92,
	},
	{
		Partials:   []string{"what", "what time"},
		Final:      "what time is it",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"play", "play some"},
		Final:      "play some music",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"thank you"},
		Final:      "thank you very much",
		Confidence: 0.98,
	},
}

// Config controls the simulation.
type Config struct {
	Utterances []SimulatedUtterance // Cycled in order; DefaultUtterances when empty
	Delay      time.Duration        // Processing delay before each delivery
	FailAfter  int                  // Report a recognizer error on this chunk; 0 disables
	Clock      clock.Clock
}

type delivery struct {
	event *stt.Event
	err   error
}

// Adapter implements stt.Adapter with simulated results.
type Adapter struct {
	cfg   Config
	clock clock.Clock

	mu            sync.Mutex
	opts          stt.Options
	listening     bool
	done          chan struct{}
	queue         chan delivery
	events        chan stt.Event
	errs          chan error
	audioReceived int
	utterance     int  // Index into cfg.Utterances
	partialIndex  int  // Next partial to send
	speaking      bool // Speech seen since the last final
}

// New creates a new mock STT adapter.
func New(cfg Config) *Adapter {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Adapter{
		cfg:    cfg,
		clock:  clk,
		events: make(chan stt.Event),
		errs:   make(chan error),
	}
}

// Start begins a mock listening session.
func (a *Adapter) Start(ctx context.Context, opts stt.Options) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listening {
		return nil
	}
	if a.done != nil {
		close(a.done)
	}

	a.opts = opts
	a.listening = true
	a.audioReceived = 0
	a.partialIndex = 0
	a.speaking = false
	a.done = make(chan struct{})
	a.queue = make(chan delivery, 64)
	a.events = make(chan stt.Event, 16)
	a.errs = make(chan error, 1)

	go a.deliver(a.done, a.queue, a.events, a.errs)
	return nil
}

// SendAudio simulates recognition of one chunk.
func (a *Adapter) SendAudio(ctx context.Context, chunk audio.Chunk) error {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return stt.ErrNotListening
	}

	a.audioReceived++
	var pending []delivery

	if a.cfg.FailAfter > 0 && a.audioReceived >= a.cfg.FailAfter {
		a.listening = false
		pending = append(pending, delivery{err: &stt.RecognitionError{Message: ErrSimulatedFailure.Error()}})
	} else if a.opts.DetectSilence && float64(chunk.Peak) < a.opts.SilenceThreshold {
		if a.speaking {
			pending = append(pending, a.finalLocked())
		}
	} else {
		a.speaking = true
		utt := a.cfg.Utterances[a.utterance]
		if a.partialIndex < len(utt.Partials) {
			text := utt.Partials[a.partialIndex]
			a.partialIndex++
			if a.opts.EnableInterimResults {
				pending = append(pending, delivery{event: &stt.Event{
					Results: []stt.Result{{
						Alternatives: []stt.Alternative{{Transcript: text, Confidence: utt.Confidence / 2}},
					}},
				}})
			}
		} else if !a.opts.DetectSilence {
			// Without silence detection the utterance ends once all partials are out.
			pending = append(pending, a.finalLocked())
		}
	}

	queue, done := a.queue, a.done
	a.mu.Unlock()

	for _, d := range pending {
		select {
		case queue <- d:
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finalLocked builds the final result of the current utterance and advances to the next.
func (a *Adapter) finalLocked() delivery {
	utt := a.cfg.Utterances[a.utterance]

	n := a.opts.MaxAlternatives
	if n < 1 {
		n = 1
	}
	alts := []stt.Alternative{{Transcript: utt.Final, Confidence: utt.Confidence}}
	if n > 1 {
		alts = append(alts, stt.Alternative{Transcript: strings.ToUpper(utt.Final[:1]) + utt.Final[1:], Confidence: utt.Confidence / 2})
	}

	a.utterance = (a.utterance + 1) % len(a.cfg.Utterances)
	a.partialIndex = 0
	a.speaking = false
	if !a.opts.EnableContinuousRecognition {
		a.listening = false
	}

	return delivery{event: &stt.Event{
		Results: []stt.Result{{Alternatives: alts, Final: true}},
	}}
}

// deliver forwards queued results in order, after the configured delay.
func (a *Adapter) deliver(done <-chan struct{}, queue <-chan delivery, events chan<- stt.Event, errs chan<- error) {
	defer close(events)

	for {
		var d delivery
		select {
		case <-done:
			return
		case d = <-queue:
		}

		if a.cfg.Delay > 0 {
			timer := a.clock.Timer(a.cfg.Delay)
			select {
			case <-timer.C:
			case <-done:
				timer.Stop()
				return
			}
		}

		if d.err != nil {
			select {
			case errs <- d.err:
			case <-done:
			}
			return
		}

		d.event.ReceivedAt = a.clock.Now()
		select {
		case events <- *d.event:
		case <-done:
			return
		}
	}
}

// Events implements stt.Adapter.
func (a *Adapter) Events() <-chan stt.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

// Errors implements stt.Adapter.
func (a *Adapter) Errors() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.errs
}

// IsListening implements stt.Adapter.
func (a *Adapter) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// AudioReceived returns the number of chunks received in the current session.
func (a *Adapter) AudioReceived() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audioReceived
}

// Close ends the mock session. Undelivered results are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.listening = false
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
	return nil
}
