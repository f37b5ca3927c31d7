package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
)

// DispatcherConfig bounds dialogue calls.
type DispatcherConfig struct {
	MaxInFlight int           // Concurrent calls; further Sends block
	Timeout     time.Duration // Per call; zero disables
}

// DefaultDispatcherConfig returns the default dispatch limits.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxInFlight: 4,
		Timeout:     10 * time.Second,
	}
}

// Dispatcher issues dialogue requests concurrently and delivers each reply,
// tagged with its request, on a single channel.
type Dispatcher struct {
	client  Client
	cfg     DispatcherConfig
	sem     *semaphore.Weighted
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
	replies chan Reply
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil clock uses wall time and nil
// metrics uses metrics.DefaultMetrics.
func NewDispatcher(client Client, cfg DispatcherConfig, clk clock.Clock, m *metrics.Metrics) *Dispatcher {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Dispatcher{
		client:  client,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		clock:   clk,
		metrics: m,
		logger:  logging.WithComponent("dialogue"),
		replies: make(chan Reply, cfg.MaxInFlight),
	}
}

// Send issues req asynchronously. It blocks only while MaxInFlight calls are
// outstanding. The reply is delivered on Replies unless ctx ends first.
func (d *Dispatcher) Send(ctx context.Context, req Request) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.metrics.RecordDialogueRequest()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)

		callCtx := ctx
		if d.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
			defer cancel()
		}

		resp, err := d.client.Message(callCtx, req)
		reply := Reply{
			Request:    req,
			Response:   resp,
			Err:        err,
			ReceivedAt: d.clock.Now(),
		}
		if err != nil {
			reply.Response = nil
			d.logger.Warn().Err(err).Str("turnId", req.ID).Msg("Dialogue call failed")
		}
		d.metrics.RecordDialogueDone(reply.Missing())

		select {
		case d.replies <- reply:
		case <-ctx.Done():
			d.logger.Debug().Str("turnId", req.ID).Msg("Dialogue reply discarded")
		}
	}()
	return nil
}

// Replies returns the channel replies are delivered on.
func (d *Dispatcher) Replies() <-chan Reply {
	return d.replies
}

// Wait blocks until every issued call has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
