// Package router turns recognition events into dialogue requests. Only final
// result groups trigger requests; interim groups are logged and remembered as
// the latest partial transcript.
package router

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/latency"
	"voice-dialogue-service/internal/service/stt"
)

// Dispatcher issues dialogue requests asynchronously.
type Dispatcher interface {
	Send(ctx context.Context, req dialogue.Request) error
}

// Turns opens and stamps per-utterance latency records.
type Turns interface {
	Begin(text string) latency.Record
	MarkRequestSent(turnID string) (latency.Record, error)
	Drop(turnID string) bool
}

// Final describes a final alternative that was sent to the dialogue service.
type Final struct {
	Record     latency.Record
	Confidence float64
}

// Config identifies where requests go.
type Config struct {
	SessionID   string
	WorkspaceID string
}

// Router routes recognition events for one session.
type Router struct {
	cfg        Config
	turns      Turns
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu            sync.RWMutex
	onFinal       func(Final)
	latestPartial string
	dispatched    uint64
}

// New creates a router.
func New(cfg Config, turns Turns, dispatcher Dispatcher, m *metrics.Metrics) *Router {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Router{
		cfg:        cfg,
		turns:      turns,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logging.WithSession("router", cfg.SessionID),
	}
}

// OnFinal registers a hook called for every dispatched final alternative.
func (r *Router) OnFinal(fn func(Final)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinal = fn
}

// OnRecognitionEvent handles one event and returns the number of dialogue
// requests issued. Every alternative of every final group is sent, in order.
func (r *Router) OnRecognitionEvent(ctx context.Context, ev stt.Event) int {
	sent := 0
	for _, res := range ev.Results {
		r.metrics.RecordRecognitionResult(res.Final)

		if !res.Final {
			for _, alt := range res.Alternatives {
				r.logger.Debug().Msgf("%s (Interim, %.2f)", alt.Transcript, alt.Confidence)
			}
			if len(res.Alternatives) > 0 {
				r.mu.Lock()
				r.latestPartial = res.Alternatives[0].Transcript
				r.mu.Unlock()
			}
			continue
		}

		for _, alt := range res.Alternatives {
			if r.dispatch(ctx, alt) {
				sent++
			}
		}
	}
	return sent
}

func (r *Router) dispatch(ctx context.Context, alt stt.Alternative) bool {
	rec := r.turns.Begin(alt.Transcript)
	logger := logging.WithTurn(r.logger, rec.TurnID)

	logger.Info().Msgf("%s (Final, %.2f)", alt.Transcript, alt.Confidence)
	logger.Info().
		Dur("recognitionLatency", rec.RecognitionLatency).
		Msg("STT latency")

	req := dialogue.Request{
		ID:          rec.TurnID,
		SessionID:   r.cfg.SessionID,
		WorkspaceID: r.cfg.WorkspaceID,
		Text:        alt.Transcript,
	}

	rec, err := r.turns.MarkRequestSent(rec.TurnID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to stamp dialogue request")
		r.turns.Drop(req.ID)
		return false
	}
	if err := r.dispatcher.Send(ctx, req); err != nil {
		logger.Warn().Err(err).Msg("Dialogue request not sent")
		r.turns.Drop(req.ID)
		return false
	}

	r.mu.Lock()
	r.latestPartial = ""
	r.dispatched++
	hook := r.onFinal
	r.mu.Unlock()

	if hook != nil {
		hook(Final{Record: rec, Confidence: alt.Confidence})
	}
	return true
}

// Run routes events until the channel closes or ctx is done.
func (r *Router) Run(ctx context.Context, events <-chan stt.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.OnRecognitionEvent(ctx, ev)
		}
	}
}

// LatestPartial returns the most recent interim transcript of the utterance
// in progress.
func (r *Router) LatestPartial() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestPartial
}

// Dispatched returns the number of dialogue requests issued.
func (r *Router) Dispatched() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatched
}
