package stt

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"voice-dialogue-service/internal/observability/logging"
	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/service/audio"
)

// ChunkMarker records when speech data was last sent to the recognizer.
type ChunkMarker interface {
	MarkChunkSent(seq uint64)
}

// Transmitter pushes captured chunks into an Adapter, stamping each one as
// sent immediately before transmission.
type Transmitter struct {
	adapter Adapter
	marker  ChunkMarker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewTransmitter creates a transmitter. marker may be nil.
func NewTransmitter(adapter Adapter, marker ChunkMarker, m *metrics.Metrics) *Transmitter {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Transmitter{
		adapter: adapter,
		marker:  marker,
		metrics: m,
		logger:  logging.WithComponent("transmitter"),
	}
}

// Send transmits one chunk.
func (t *Transmitter) Send(ctx context.Context, chunk audio.Chunk) error {
	if t.marker != nil {
		t.marker.MarkChunkSent(chunk.Seq)
	}
	if err := t.adapter.SendAudio(ctx, chunk); err != nil {
		return fmt.Errorf("send chunk %d: %w", chunk.Seq, err)
	}
	t.metrics.RecordChunkSent()
	return nil
}

// Run transmits chunks in arrival order until the channel closes or ctx is done.
func (t *Transmitter) Run(ctx context.Context, chunks <-chan audio.Chunk) error {
	var sent uint64
	defer func() {
		t.logger.Debug().Uint64("chunks", sent).Msg("Transmitter stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if err := t.Send(ctx, chunk); err != nil {
				return err
			}
			sent++
		}
	}
}
