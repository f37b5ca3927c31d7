package google

import (
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"voice-dialogue-service/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 22050 {
		t.Errorf("expected default sample rate 22050, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.SpeechEndTimeout != time.Second {
		t.Errorf("expected default speech end timeout 1s, got %v", cfg.SpeechEndTimeout)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"UNKNOWN", speechpb.RecognitionConfig_LINEAR16}, // fallback
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"", speechpb.RecognitionConfig_LINEAR16},        // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStreamingConfig_DefaultOptions(t *testing.T) {
	sc := streamingConfig(DefaultConfig(), stt.DefaultOptions())

	if !sc.InterimResults {
		t.Error("expected interim results enabled")
	}
	if sc.SingleUtterance {
		t.Error("expected continuous recognition, got single utterance")
	}
	if sc.Config.MaxAlternatives != 1 {
		t.Errorf("expected max alternatives 1, got %d", sc.Config.MaxAlternatives)
	}
	if sc.Config.EnableWordConfidence {
		t.Error("expected word confidence disabled")
	}
	if sc.Config.EnableWordTimeOffsets {
		t.Error("expected timestamps disabled")
	}
	if sc.Config.SampleRateHertz != 22050 {
		t.Errorf("expected sample rate 22050, got %d", sc.Config.SampleRateHertz)
	}
	if !sc.EnableVoiceActivityEvents {
		t.Error("expected voice activity events for silence detection")
	}
	if got := sc.VoiceActivityTimeout.GetSpeechEndTimeout().AsDuration(); got != time.Second {
		t.Errorf("expected speech end timeout 1s, got %v", got)
	}
}

func TestStreamingConfig_CustomOptions(t *testing.T) {
	opts := stt.Options{
		DetectSilence:               false,
		EnableWordConfidence:        true,
		EnableTimestamps:            true,
		MaxAlternatives:             0,
		EnableContinuousRecognition: false,
		EnableInterimResults:        false,
	}
	sc := streamingConfig(Config{LanguageCode: "es-ES", SampleRateHz: 16000, AudioEncoding: "MULAW"}, opts)

	if sc.Config.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", sc.Config.LanguageCode)
	}
	if sc.Config.Encoding != speechpb.RecognitionConfig_MULAW {
		t.Errorf("expected MULAW, got %v", sc.Config.Encoding)
	}
	if sc.Config.MaxAlternatives != 1 {
		t.Errorf("expected max alternatives clamped to 1, got %d", sc.Config.MaxAlternatives)
	}
	if !sc.SingleUtterance {
		t.Error("expected single utterance when continuous recognition is off")
	}
	if sc.EnableVoiceActivityEvents || sc.VoiceActivityTimeout != nil {
		t.Error("expected no voice activity settings without silence detection")
	}
	if !sc.Config.EnableWordConfidence || !sc.Config.EnableWordTimeOffsets {
		t.Error("expected word confidence and timestamps enabled")
	}
}

func TestToEvent(t *testing.T) {
	now := time.Unix(100, 0)
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				IsFinal: true,
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "turn on the lights", Confidence: 0.92},
				},
			},
			{IsFinal: false},
		},
	}

	ev := toEvent(resp, now)

	if !ev.ReceivedAt.Equal(now) {
		t.Errorf("expected received at %v, got %v", now, ev.ReceivedAt)
	}
	if len(ev.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ev.Results))
	}
	if !ev.Results[0].Final || ev.Results[1].Final {
		t.Errorf("expected finality [true false], got [%v %v]", ev.Results[0].Final, ev.Results[1].Final)
	}
	alt := ev.Results[0].Alternatives[0]
	if alt.Transcript != "turn on the lights" {
		t.Errorf("expected transcript 'turn on the lights', got %q", alt.Transcript)
	}
	if alt.Confidence < 0.919 || alt.Confidence > 0.921 {
		t.Errorf("expected confidence 0.92, got %v", alt.Confidence)
	}
	if len(ev.Results[1].Alternatives) != 0 {
		t.Errorf("expected no alternatives, got %d", len(ev.Results[1].Alternatives))
	}
}
