package events

import (
	"context"
	"errors"
	"testing"

	"voice-dialogue-service/internal/models"
	"voice-dialogue-service/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscripts != nil {
				t.Error("expected nil transcripts writer when disabled")
			}
			if p.writerTurns != nil {
				t.Error("expected nil turns writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:          false,
		Brokers:          []string{"localhost:9092"},
		TopicTranscripts: "test.transcripts",
		TopicTurns:       "test.turns",
		Principal:        "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTranscripts != "test.transcripts" {
		t.Errorf("expected transcripts topic 'test.transcripts', got %s", p.topicTranscripts)
	}
	if p.topicTurns != "test.turns" {
		t.Errorf("expected turns topic 'test.turns', got %s", p.topicTurns)
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:          true,
		Brokers:          []string{"localhost:9092"},
		TopicTranscripts: "test.transcripts",
		TopicTurns:       "test.turns",
	})
	defer p.Close()

	if !p.enabled {
		t.Error("expected publisher to be enabled")
	}
	if p.writerTranscripts == nil || p.writerTranscripts.Topic != "test.transcripts" {
		t.Error("expected transcripts writer on test.transcripts")
	}
	if p.writerTurns == nil || p.writerTurns.Topic != "test.turns" {
		t.Error("expected turns writer on test.turns")
	}
}

func TestPublisher_PublishTranscript_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishTranscript(context.Background(), models.TranscriptFinal{
		EventType:  models.EventTranscriptFinal,
		SessionID:  "sess",
		TurnID:     "sess-turn-1",
		Text:       "turn on the lights",
		Confidence: 0.92,
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishTurn(context.Background(), models.DialogueTurn{
		EventType:       models.EventTurnCompleted,
		SessionID:       "sess",
		TurnID:          "sess-turn-1",
		ResponseMissing: true,
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishTurn(context.Background(), models.DialogueTurn{EventType: models.EventTurnCompleted})
	if !errors.Is(err, schema.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestPublisher_Close_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
