// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/durationpb"

	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/stt"
)

// Config holds recognizer settings that are fixed for the adapter's lifetime.
type Config struct {
	LanguageCode     string        // BCP-47 language code
	SampleRateHz     int           // Must match the capture sample rate
	AudioEncoding    string        // speechpb.RecognitionConfig_AudioEncoding name
	SpeechEndTimeout time.Duration // Silence that ends an utterance when silence detection is on
}

// DefaultConfig returns the default recognizer settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:     "en-US",
		SampleRateHz:     22050,
		AudioEncoding:    "LINEAR16",
		SpeechEndTimeout: time.Second,
	}
}

// parseAudioEncoding maps an encoding name to its proto value, falling back to LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// streamingConfig builds the first request of a streaming session.
func streamingConfig(cfg Config, opts stt.Options) *speechpb.StreamingRecognitionConfig {
	maxAlternatives := opts.MaxAlternatives
	if maxAlternatives < 1 {
		maxAlternatives = 1
	}

	sc := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:              parseAudioEncoding(cfg.AudioEncoding),
			SampleRateHertz:       int32(cfg.SampleRateHz),
			LanguageCode:          cfg.LanguageCode,
			MaxAlternatives:       int32(maxAlternatives),
			EnableWordConfidence:  opts.EnableWordConfidence,
			EnableWordTimeOffsets: opts.EnableTimestamps,
		},
		InterimResults:  opts.EnableInterimResults,
		SingleUtterance: !opts.EnableContinuousRecognition,
	}
	if opts.DetectSilence {
		sc.EnableVoiceActivityEvents = true
		if cfg.SpeechEndTimeout > 0 {
			sc.VoiceActivityTimeout = &speechpb.StreamingRecognitionConfig_VoiceActivityTimeout{
				SpeechEndTimeout: durationpb.New(cfg.SpeechEndTimeout),
			}
		}
	}
	return sc
}

// toEvent converts a streaming response into a recognition event.
func toEvent(resp *speechpb.StreamingRecognizeResponse, at time.Time) stt.Event {
	ev := stt.Event{ReceivedAt: at, Results: make([]stt.Result, 0, len(resp.GetResults()))}
	for _, r := range resp.GetResults() {
		res := stt.Result{Final: r.GetIsFinal()}
		for _, alt := range r.GetAlternatives() {
			res.Alternatives = append(res.Alternatives, stt.Alternative{
				Transcript: alt.GetTranscript(),
				Confidence: float64(alt.GetConfidence()),
			})
		}
		ev.Results = append(ev.Results, res)
	}
	return ev
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	stream    speechpb.Speech_StreamingRecognizeClient
	cancel    context.CancelFunc
	done      chan struct{}
	events    chan stt.Event
	errs      chan error
	listening bool
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client: c,
		cfg:    cfg,
		logger: logging.WithComponent("stt-google"),
		events: make(chan stt.Event),
		errs:   make(chan error),
	}, nil
}

// Start opens a streaming recognition session and sends the initial config.
func (a *Adapter) Start(ctx context.Context, opts stt.Options) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listening {
		return nil
	}
	a.closeLocked()

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return err
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(a.cfg, opts),
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("send streaming config: %w", err)
	}

	a.stream = stream
	a.cancel = cancel
	a.done = make(chan struct{})
	a.events = make(chan stt.Event, 16)
	a.errs = make(chan error, 1)
	a.listening = true

	go a.listen(stream, a.done, a.events, a.errs)

	a.logger.Info().
		Str("language", a.cfg.LanguageCode).
		Int("sampleRate", a.cfg.SampleRateHz).
		Bool("interim", opts.EnableInterimResults).
		Bool("continuous", opts.EnableContinuousRecognition).
		Msg("Listening")
	return nil
}

// SendAudio sends the chunk as LINEAR16 audio content.
func (a *Adapter) SendAudio(ctx context.Context, chunk audio.Chunk) error {
	a.mu.Lock()
	stream := a.stream
	listening := a.listening
	a.mu.Unlock()

	if !listening || stream == nil {
		return stt.ErrNotListening
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk.PCM16(),
		},
	})
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

// Close ends the streaming session. The adapter can be started again.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *Adapter) closeLocked() error {
	a.listening = false
	if a.stream == nil {
		return nil
	}
	close(a.done)
	err := a.stream.CloseSend()
	a.cancel()
	a.stream = nil
	return err
}

// Shutdown closes the session and the underlying client.
func (a *Adapter) Shutdown() error {
	closeErr := a.Close()
	if err := a.client.Close(); err != nil {
		return err
	}
	return closeErr
}

// listen receives responses until the stream ends or the session is closed.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, done <-chan struct{}, events chan<- stt.Event, errs chan<- error) {
	defer close(events)

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || isDone(done) {
				return
			}
			a.fail(done, errs, &stt.RecognitionError{Message: err.Error()})
			return
		}
		if st := resp.GetError(); st != nil {
			a.fail(done, errs, &stt.RecognitionError{Message: st.GetMessage()})
			return
		}
		if len(resp.GetResults()) == 0 {
			if ev := resp.GetSpeechEventType(); ev != speechpb.StreamingRecognizeResponse_SPEECH_EVENT_UNSPECIFIED {
				a.logger.Debug().Str("event", ev.String()).Msg("Speech event")
			}
			continue
		}

		select {
		case events <- toEvent(resp, time.Now()):
		case <-done:
			return
		}
	}
}

func (a *Adapter) fail(done <-chan struct{}, errs chan<- error, err error) {
	a.mu.Lock()
	if !isDone(done) {
		a.listening = false
	}
	a.mu.Unlock()

	select {
	case errs <- err:
	case <-done:
	}
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
