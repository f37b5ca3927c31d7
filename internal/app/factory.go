package app

import (
	"context"
	"fmt"

	"voice-dialogue-service/internal/config"
	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/dialogue/gemini"
	dialoguemock "voice-dialogue-service/internal/service/dialogue/mock"
	"voice-dialogue-service/internal/service/dialogue/watson"
	"voice-dialogue-service/internal/service/stt"
	"voice-dialogue-service/internal/service/stt/google"
	sttmock "voice-dialogue-service/internal/service/stt/mock"
)

// NewDevice returns the capture backend named by cfg.Backend.
func NewDevice(cfg config.CaptureConfig) (audio.Device, error) {
	switch cfg.Backend {
	case "malgo":
		return audio.NewMalgoDevice(), nil
	case "wav":
		return audio.NewWAVDevice(cfg.WAVPath), nil
	case "tone":
		return audio.NewToneDevice(), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}

// NewRecognizer returns the recognizer named by cfg.Provider and, when the
// backend holds a client connection, a function that closes it.
func NewRecognizer(ctx context.Context, cfg config.STTConfig, sampleRate int) (stt.Adapter, func() error, error) {
	switch cfg.Provider {
	case "mock":
		return sttmock.New(sttmock.Config{}), nil, nil
	case "google":
		a, err := google.New(ctx, google.Config{
			LanguageCode:     cfg.LanguageCode,
			SampleRateHz:     sampleRate,
			AudioEncoding:    cfg.AudioEncoding,
			SpeechEndTimeout: cfg.SpeechEndTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create google recognizer: %w", err)
		}
		return a, a.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

// NewDialogueClient returns the dialogue backend named by cfg.Provider.
func NewDialogueClient(ctx context.Context, cfg config.DialogueConfig) (dialogue.Client, error) {
	switch cfg.Provider {
	case "mock":
		return dialoguemock.New(), nil
	case "watson":
		c, err := watson.New(watson.Config{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Version: cfg.Version,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gemini":
		gcfg := gemini.DefaultConfig()
		gcfg.APIKey = cfg.APIKey
		if cfg.Model != "" {
			gcfg.Model = cfg.Model
		}
		c, err := gemini.New(ctx, gcfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown dialogue provider %q", cfg.Provider)
	}
}
