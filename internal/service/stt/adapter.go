// Package stt defines the interface for streaming Speech-to-Text adapters.
package stt

import (
	"context"
	"errors"
	"time"

	"voice-dialogue-service/internal/service/audio"
)

// Recognizer errors.
var (
	ErrRecognition  = errors.New("recognition error")
	ErrNotListening = errors.New("recognizer is not listening")
)

// RecognitionError carries the human-readable error reported by a recognizer.
type RecognitionError struct {
	Message string
}

func (e *RecognitionError) Error() string {
	return "recognition error: " + e.Message
}

func (e *RecognitionError) Unwrap() error {
	return ErrRecognition
}

// Options configures a listening session.
type Options struct {
	DetectSilence               bool
	EnableWordConfidence        bool
	EnableTimestamps            bool
	SilenceThreshold            float64 // 0..1 amplitude treated as silence
	MaxAlternatives             int
	EnableContinuousRecognition bool
	EnableInterimResults        bool
}

// DefaultOptions returns the options a session activates with.
func DefaultOptions() Options {
	return Options{
		DetectSilence:               true,
		EnableWordConfidence:        false,
		EnableTimestamps:            false,
		SilenceThreshold:            0.03,
		MaxAlternatives:             1,
		EnableContinuousRecognition: true,
		EnableInterimResults:        true,
	}
}

// Alternative is one candidate transcript.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is a group of alternatives for the same stretch of audio.
type Result struct {
	Alternatives []Alternative
	Final        bool
}

// Event is one recognition callback from the recognizer.
type Event struct {
	Results    []Result
	ReceivedAt time.Time
}

// HasFinal reports whether any result group in the event is final.
func (e Event) HasFinal() bool {
	for _, r := range e.Results {
		if r.Final {
			return true
		}
	}
	return false
}

// Adapter defines the interface for streaming STT providers.
type Adapter interface {
	// Start begins listening. Events and errors for this session are delivered
	// on the channels returned by Events and Errors until Close.
	Start(ctx context.Context, opts Options) error

	// SendAudio pushes one captured chunk to the recognizer.
	SendAudio(ctx context.Context, chunk audio.Chunk) error

	// Events returns the recognition events of the current session.
	Events() <-chan Event

	// Errors returns recognizer errors of the current session. A reported
	// error ends listening.
	Errors() <-chan error

	// IsListening reports whether a session is active.
	IsListening() bool

	// Close stops listening. No events are delivered afterwards.
	Close() error
}
