// Package session implements the controller that activates and deactivates
// the capture, recognition and dialogue pipeline as one unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voice-dialogue-service/internal/models"
	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/service/audio"
	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/latency"
	"voice-dialogue-service/internal/service/router"
	"voice-dialogue-service/internal/service/segment"
	"voice-dialogue-service/internal/service/stt"
)

// Sink receives the events a session produces.
type Sink interface {
	PublishTranscript(ctx context.Context, ev models.TranscriptFinal) error
	PublishTurn(ctx context.Context, ev models.DialogueTurn) error
}

// Config holds per-activation settings.
type Config struct {
	DeviceID      string
	BufferSeconds int
	SampleRate    int
	WorkspaceID   string
	Recognition   stt.Options
	Dispatch      dialogue.DispatcherConfig
}

// DefaultConfig returns the default device at 22050Hz with a 2 second buffer.
func DefaultConfig() Config {
	return Config{
		BufferSeconds: 2,
		SampleRate:    22050,
		Recognition:   stt.DefaultOptions(),
		Dispatch:      dialogue.DefaultDispatcherConfig(),
	}
}

// Status is a snapshot of the controller.
type Status struct {
	State          string    `json:"state"`
	SessionID      string    `json:"sessionId,omitempty"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
	DeviceID       string    `json:"deviceId,omitempty"`
	ChunksEmitted  uint64    `json:"chunksEmitted"`
	Dispatched     uint64    `json:"dispatched"`
	TurnsCompleted uint64    `json:"turnsCompleted"`
	InFlight       int       `json:"inFlight"`
	LatestPartial  string    `json:"latestPartial,omitempty"`
	EndReason      string    `json:"endReason,omitempty"`
	LastError      string    `json:"lastError,omitempty"`
}

// run holds everything owned by one activation.
type run struct {
	id         string
	startedAt  time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	capture    *audio.Session
	tracker    *latency.Tracker
	dispatcher *dialogue.Dispatcher
	router     *router.Router
	logger     zerolog.Logger
	stopping   atomic.Bool
	release    sync.Once
	done       chan struct{}
}

// Controller is the Inactive/Active state machine around one pipeline.
type Controller struct {
	cfg        Config
	engine     *audio.Engine
	recognizer stt.Adapter
	client     dialogue.Client
	sinks      []Sink
	ids        *segment.Generator
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu        sync.Mutex
	state     State
	current   *run
	listeners []func(State)
	last      latency.Record
	hasLast   bool
	endReason string
	lastErr   error
}

// NewController creates an inactive controller. A nil clock uses wall time
// and nil metrics uses metrics.DefaultMetrics.
func NewController(cfg Config, engine *audio.Engine, recognizer stt.Adapter, client dialogue.Client, clk clock.Clock, m *metrics.Metrics, sinks ...Sink) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Controller{
		cfg:        cfg,
		engine:     engine,
		recognizer: recognizer,
		client:     client,
		sinks:      sinks,
		ids:        segment.New(),
		clock:      clk,
		metrics:    m,
		logger:     logging.WithComponent("session"),
	}
}

// OnStateChange registers fn to be called after every transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start activates the pipeline: it opens the capture device, starts the
// recognizer with the configured options and begins streaming. Starting an
// active controller is a no-op. The session outlives ctx; use Stop to end it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActive {
		c.mu.Unlock()
		return nil
	}

	id := uuid.NewString()
	logger := logging.WithSession("session", id)

	capture, err := c.engine.Start(c.cfg.DeviceID, c.cfg.BufferSeconds, c.cfg.SampleRate)
	if err != nil {
		c.mu.Unlock()
		logger.Error().Err(err).Msg("Failed to start capture")
		return fmt.Errorf("start capture: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := c.recognizer.Start(runCtx, c.cfg.Recognition); err != nil {
		cancel()
		capture.Stop()
		c.mu.Unlock()
		logger.Error().Err(err).Msg("Failed to start recognizer")
		return fmt.Errorf("start recognizer: %w", err)
	}

	r := &run{
		id:        id,
		startedAt: c.clock.Now(),
		ctx:       runCtx,
		cancel:    cancel,
		capture:   capture,
		tracker:   latency.NewTracker(id, c.ids, c.clock, c.metrics),
		logger:    logger,
		done:      make(chan struct{}),
	}
	r.dispatcher = dialogue.NewDispatcher(c.client, c.cfg.Dispatch, c.clock, c.metrics)
	r.router = router.New(router.Config{SessionID: id, WorkspaceID: c.cfg.WorkspaceID}, r.tracker, r.dispatcher, c.metrics)
	r.router.OnFinal(func(f router.Final) {
		c.publishTranscript(r, models.NewTranscriptFinal(id, f.Record, f.Confidence))
	})

	c.current = r
	c.state = StateActive
	c.endReason = ""
	c.lastErr = nil
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	logger.Info().
		Str("device", c.cfg.DeviceID).
		Int("bufferSeconds", c.cfg.BufferSeconds).
		Int("sampleRate", c.cfg.SampleRate).
		Interface("recognition", c.cfg.Recognition).
		Msg("Session activated")
	notify(listeners, StateActive)

	go c.supervise(r)
	return nil
}

// Stop deactivates the pipeline and waits for it to wind down. Stopping an
// inactive controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	c.mu.Unlock()
	if r == nil {
		return nil
	}

	r.stopping.Store(true)
	r.cancel()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current session ends, or nil when
// inactive.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.done
}

// supervise runs the pipeline goroutines and deactivates the controller when
// any of them fails or the session is stopped.
func (c *Controller) supervise(r *run) {
	g, gctx := errgroup.WithContext(r.ctx)
	chunks := make(chan audio.Chunk, 4)

	g.Go(func() error {
		defer close(chunks)
		return r.capture.Run(gctx, chunks)
	})
	g.Go(func() error {
		return stt.NewTransmitter(c.recognizer, r.tracker, c.metrics).Run(gctx, chunks)
	})
	g.Go(func() error {
		return r.router.Run(gctx, c.recognizer.Events())
	})
	g.Go(func() error {
		select {
		case err, ok := <-c.recognizer.Errors():
			if !ok || err == nil {
				return nil
			}
			c.metrics.RecordRecognitionError()
			return err
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		replies := r.dispatcher.Replies()
		for {
			select {
			case <-gctx.Done():
				return nil
			case reply := <-replies:
				c.handleReply(gctx, r, reply)
			}
		}
	})

	c.finish(r, g.Wait())
}

func (c *Controller) handleReply(ctx context.Context, r *run, reply dialogue.Reply) {
	rec, err := r.tracker.Complete(reply)
	logger := logging.WithTurn(r.logger, reply.Request.ID)

	switch {
	case errors.Is(err, dialogue.ErrResponseMissing):
		logger.Warn().
			Err(reply.Err).
			Dur("recognitionLatency", rec.RecognitionLatency).
			Dur("dialogueLatency", rec.DialogueLatency).
			Dur("totalLatency", rec.TotalLatency).
			Msg("Response is null")
	case err != nil:
		logger.Error().Err(err).Msg("Failed to complete turn")
		return
	default:
		ev := logger.Info().
			Dur("recognitionLatency", rec.RecognitionLatency).
			Dur("dialogueLatency", rec.DialogueLatency).
			Dur("totalLatency", rec.TotalLatency).
			Str("text", reply.Response.FirstText())
		if intent, ok := reply.Response.TopIntent(); ok {
			ev = ev.Str("intent", intent.Name).Float64("confidence", intent.Confidence)
		}
		ev.Msg("Dialogue response")
	}

	c.mu.Lock()
	c.last = rec
	c.hasLast = true
	c.mu.Unlock()

	turn := models.NewDialogueTurn(r.id, rec, reply.Response)
	for _, s := range c.sinks {
		if err := s.PublishTurn(ctx, turn); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish turn")
		}
	}
}

func (c *Controller) publishTranscript(r *run, ev models.TranscriptFinal) {
	for _, s := range c.sinks {
		if err := s.PublishTranscript(r.ctx, ev); err != nil {
			logger := logging.WithTurn(r.logger, ev.TurnID)
			logger.Warn().Err(err).Msg("Failed to publish transcript")
		}
	}
}

// finish releases the run's resources and moves the controller to Inactive.
func (c *Controller) finish(r *run, err error) {
	reason := endReason(err, r.stopping.Load())
	if reason == ReasonStopped {
		err = nil
	}

	if relErr := c.releaseRun(r); relErr != nil {
		r.logger.Warn().Err(relErr).Msg("Errors releasing session resources")
	}

	c.mu.Lock()
	if c.current == r {
		c.current = nil
	}
	c.state = StateInactive
	c.endReason = reason
	c.lastErr = err
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	c.metrics.RecordSessionEnd(reason)
	if err != nil {
		r.logger.Error().Err(err).Str("reason", reason).Msg("Session deactivated")
	} else {
		r.logger.Info().Str("reason", reason).Msg("Session deactivated")
	}
	notify(listeners, StateInactive)
	close(r.done)
}

// releaseRun stops capture, stops listening and abandons unanswered turns.
// It runs at most once per run.
func (c *Controller) releaseRun(r *run) error {
	var result *multierror.Error
	r.release.Do(func() {
		r.cancel()
		r.capture.Stop()
		if err := c.recognizer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close recognizer: %w", err))
		}
		r.dispatcher.Wait()
		if n := r.tracker.DropAll(); n > 0 {
			r.logger.Info().Int("turns", n).Msg("Dropped unanswered turns")
		}
	})
	return result.ErrorOrNil()
}

func endReason(err error, stopping bool) string {
	switch {
	case errors.Is(err, audio.ErrDeviceDisconnected):
		return ReasonDeviceLost
	case stopping:
		return ReasonStopped
	case errors.Is(err, stt.ErrRecognition):
		return ReasonRecognitionError
	case errors.Is(err, stt.ErrNotListening):
		return ReasonRecognizerEnded
	case err == nil:
		return ReasonStopped
	default:
		return ReasonFailed
	}
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:     c.state.String(),
		EndReason: c.endReason,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if r := c.current; r != nil {
		st.SessionID = r.id
		st.StartedAt = r.startedAt
		st.DeviceID = r.capture.DeviceID
		st.ChunksEmitted = r.capture.Emitted()
		st.Dispatched = r.router.Dispatched()
		st.TurnsCompleted = r.tracker.Completed()
		st.InFlight = r.tracker.InFlight()
		st.LatestPartial = r.router.LatestPartial()
	}
	return st
}

// LastTurn returns the latency record of the most recently completed turn,
// across sessions.
func (c *Controller) LastTurn() (latency.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}
