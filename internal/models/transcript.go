// Package models defines the data structures for published dialogue events.
package models

import (
	"time"

	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/latency"
)

// Event types.
const (
	EventTranscriptFinal = "dialogue.transcript.final"
	EventTurnCompleted   = "dialogue.turn.completed"
)

// TranscriptFinal represents a final transcript sent to the dialogue service.
type TranscriptFinal struct {
	EventType            string  `json:"eventType"`
	SessionID            string  `json:"sessionId"`
	TurnID               string  `json:"turnId"`
	Timestamp            int64   `json:"timestamp"`
	Text                 string  `json:"text"`
	Confidence           float64 `json:"confidence"`
	RecognitionLatencyMs int64   `json:"recognitionLatencyMs"`
}

// DialogueTurn represents a completed utterance with the dialogue response
// and the latencies measured along the way.
type DialogueTurn struct {
	EventType            string   `json:"eventType"`
	SessionID            string   `json:"sessionId"`
	TurnID               string   `json:"turnId"`
	Timestamp            int64    `json:"timestamp"`
	Text                 string   `json:"text"`
	ResponseText         []string `json:"responseText,omitempty"`
	Intent               string   `json:"intent,omitempty"`
	IntentConfidence     float64  `json:"intentConfidence,omitempty"`
	ResponseMissing      bool     `json:"responseMissing"`
	RecognitionLatencyMs int64    `json:"recognitionLatencyMs"`
	DialogueLatencyMs    int64    `json:"dialogueLatencyMs"`
	TotalLatencyMs       int64    `json:"totalLatencyMs"`
}

// NewTranscriptFinal builds the event for a dispatched final transcript.
func NewTranscriptFinal(sessionID string, rec latency.Record, confidence float64) TranscriptFinal {
	return TranscriptFinal{
		EventType:            EventTranscriptFinal,
		SessionID:            sessionID,
		TurnID:               rec.TurnID,
		Timestamp:            rec.FinalizedAt.UnixMilli(),
		Text:                 rec.Text,
		Confidence:           confidence,
		RecognitionLatencyMs: rec.RecognitionLatency.Milliseconds(),
	}
}

// NewDialogueTurn builds the event for a completed turn. Response text and
// intent are left empty when the response is missing.
func NewDialogueTurn(sessionID string, rec latency.Record, resp *dialogue.Response) DialogueTurn {
	ev := DialogueTurn{
		EventType:            EventTurnCompleted,
		SessionID:            sessionID,
		TurnID:               rec.TurnID,
		Timestamp:            rec.ResponseAt.UnixMilli(),
		Text:                 rec.Text,
		ResponseMissing:      rec.ResponseMissing,
		RecognitionLatencyMs: ms(rec.RecognitionLatency),
		DialogueLatencyMs:    ms(rec.DialogueLatency),
		TotalLatencyMs:       ms(rec.TotalLatency),
	}
	if resp != nil && !rec.ResponseMissing {
		ev.ResponseText = resp.Text
		if intent, ok := resp.TopIntent(); ok {
			ev.Intent = intent.Name
			ev.IntentConfidence = intent.Confidence
		}
	}
	return ev
}

func ms(d time.Duration) int64 {
	return d.Milliseconds()
}
