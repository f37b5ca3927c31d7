package models

import (
	"testing"
	"time"

	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/latency"
)

func testRecord() latency.Record {
	base := time.UnixMilli(1_700_000_000_000)
	return latency.Record{
		TurnID:             "sess-turn-1",
		Text:               "turn on the lights",
		FinalizedAt:        base.Add(120 * time.Millisecond),
		ResponseAt:         base.Add(340 * time.Millisecond),
		RecognitionLatency: 120 * time.Millisecond,
		DialogueLatency:    220 * time.Millisecond,
		TotalLatency:       340 * time.Millisecond,
	}
}

func TestNewTranscriptFinal(t *testing.T) {
	ev := NewTranscriptFinal("sess", testRecord(), 0.92)

	if ev.EventType != EventTranscriptFinal {
		t.Errorf("expected %s, got %s", EventTranscriptFinal, ev.EventType)
	}
	if ev.Timestamp != 1_700_000_000_120 {
		t.Errorf("expected finalized timestamp, got %d", ev.Timestamp)
	}
	if ev.RecognitionLatencyMs != 120 {
		t.Errorf("expected 120ms, got %d", ev.RecognitionLatencyMs)
	}
	if ev.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", ev.Confidence)
	}
}

func TestNewDialogueTurn(t *testing.T) {
	resp := &dialogue.Response{
		Text:    []string{"Turning on the lights."},
		Intents: []dialogue.Intent{{Name: "lights_on", Confidence: 0.97}},
	}
	ev := NewDialogueTurn("sess", testRecord(), resp)

	if ev.EventType != EventTurnCompleted {
		t.Errorf("expected %s, got %s", EventTurnCompleted, ev.EventType)
	}
	if ev.Intent != "lights_on" || ev.IntentConfidence != 0.97 {
		t.Errorf("expected lights_on@0.97, got %s@%v", ev.Intent, ev.IntentConfidence)
	}
	if ev.RecognitionLatencyMs != 120 || ev.DialogueLatencyMs != 220 || ev.TotalLatencyMs != 340 {
		t.Errorf("expected 120/220/340, got %d/%d/%d", ev.RecognitionLatencyMs, ev.DialogueLatencyMs, ev.TotalLatencyMs)
	}
}

func TestNewDialogueTurn_MissingResponse(t *testing.T) {
	rec := testRecord()
	rec.ResponseMissing = true
	ev := NewDialogueTurn("sess", rec, nil)

	if !ev.ResponseMissing {
		t.Error("expected ResponseMissing")
	}
	if ev.Intent != "" || len(ev.ResponseText) != 0 {
		t.Errorf("expected no intent or text, got %q / %v", ev.Intent, ev.ResponseText)
	}
	if ev.TotalLatencyMs != 340 {
		t.Errorf("expected latency still populated, got %d", ev.TotalLatencyMs)
	}
}
