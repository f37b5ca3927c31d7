// Package schema validates outgoing events before they are published.
package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"voice-dialogue-service/internal/models"
)

// ErrInvalidEvent is returned for events that fail validation.
var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks required fields of known event types. Unknown types pass.
func (v *Validator) Validate(event any) error {
	var err error
	switch ev := event.(type) {
	case models.TranscriptFinal:
		err = validateTranscript(ev)
	case *models.TranscriptFinal:
		err = validateTranscript(*ev)
	case models.DialogueTurn:
		err = validateTurn(ev)
	case *models.DialogueTurn:
		err = validateTurn(*ev)
	default:
		return nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("Schema validation failed")
	}
	return err
}

func validateTranscript(ev models.TranscriptFinal) error {
	if ev.EventType != models.EventTranscriptFinal {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.SessionID == "" || ev.TurnID == "" {
		return fmt.Errorf("%w: sessionId and turnId are required", ErrInvalidEvent)
	}
	if ev.Confidence < 0 || ev.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidEvent, ev.Confidence)
	}
	if ev.RecognitionLatencyMs < 0 {
		return fmt.Errorf("%w: negative recognition latency", ErrInvalidEvent)
	}
	return nil
}

func validateTurn(ev models.DialogueTurn) error {
	if ev.EventType != models.EventTurnCompleted {
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.SessionID == "" || ev.TurnID == "" {
		return fmt.Errorf("%w: sessionId and turnId are required", ErrInvalidEvent)
	}
	if ev.RecognitionLatencyMs < 0 || ev.DialogueLatencyMs < 0 {
		return fmt.Errorf("%w: negative latency", ErrInvalidEvent)
	}
	if ev.ResponseMissing && ev.Intent != "" {
		return fmt.Errorf("%w: intent present on missing response", ErrInvalidEvent)
	}
	return nil
}
