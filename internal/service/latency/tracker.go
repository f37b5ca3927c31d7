// Package latency tracks per-utterance pipeline timestamps and derives
// recognition, dialogue and total latency from them.
//
// Each finalized utterance gets its own Record keyed by turn id, so dialogue
// replies that overlap or arrive out of order never share timestamps.
package latency

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"voice-dialogue-service/internal/observability/metrics"
	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/segment"
)

// ErrUnknownTurn is returned for a turn id the tracker is not holding.
var ErrUnknownTurn = errors.New("unknown turn")

// Record holds the timestamps of one utterance and the latencies derived from them.
type Record struct {
	TurnID        string
	Text          string
	ChunkSentAt   time.Time // Last speech chunk sent before the final result
	FinalizedAt   time.Time
	RequestSentAt time.Time
	ResponseAt    time.Time

	RecognitionLatency time.Duration // FinalizedAt - ChunkSentAt
	DialogueLatency    time.Duration // ResponseAt - RequestSentAt
	TotalLatency       time.Duration // RecognitionLatency + DialogueLatency
	ResponseMissing    bool
}

type entry struct {
	record    Record
	lifecycle *segment.Lifecycle
}

// Tracker correlates chunk, recognition and dialogue timestamps per turn.
type Tracker struct {
	sessionID string
	ids       *segment.Generator
	clock     clock.Clock
	metrics   *metrics.Metrics

	mu            sync.Mutex
	lastChunkSent time.Time
	lastChunkSeq  uint64
	pending       map[string]*entry
	last          Record
	hasLast       bool
	completed     uint64
}

// NewTracker creates a tracker for one session.
func NewTracker(sessionID string, ids *segment.Generator, clk clock.Clock, m *metrics.Metrics) *Tracker {
	if ids == nil {
		ids = segment.New()
	}
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Tracker{
		sessionID: sessionID,
		ids:       ids,
		clock:     clk,
		metrics:   m,
		pending:   make(map[string]*entry),
	}
}

// MarkChunkSent stamps the time speech data was last sent to the recognizer.
func (t *Tracker) MarkChunkSent(seq uint64) {
	now := t.clock.Now()
	t.mu.Lock()
	t.lastChunkSent = now
	t.lastChunkSeq = seq
	t.mu.Unlock()
}

// Begin opens a turn for a final transcript, snapshotting the last chunk-sent
// time and computing recognition latency. Recognition latency is zero if no
// chunk has been sent yet.
func (t *Tracker) Begin(text string) Record {
	now := t.clock.Now()
	id := t.ids.Next(t.sessionID)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		TurnID:      id,
		Text:        text,
		ChunkSentAt: t.lastChunkSent,
		FinalizedAt: now,
	}
	if !t.lastChunkSent.IsZero() {
		rec.RecognitionLatency = now.Sub(t.lastChunkSent)
	}
	t.pending[id] = &entry{record: rec, lifecycle: segment.NewLifecycle(id)}
	return rec
}

// MarkRequestSent stamps the dialogue request of a turn as sent.
func (t *Tracker) MarkRequestSent(turnID string) (Record, error) {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[turnID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownTurn, turnID)
	}
	if err := e.lifecycle.Dispatch(); err != nil {
		return e.record, fmt.Errorf("turn %s: %w", turnID, err)
	}
	e.record.RequestSentAt = now
	return e.record, nil
}

// Complete closes the turn a reply belongs to and computes dialogue and total
// latency. Latencies are computed for missing responses too; the returned
// error is then dialogue.ErrResponseMissing alongside the full record.
func (t *Tracker) Complete(reply dialogue.Reply) (Record, error) {
	at := reply.ReceivedAt
	if at.IsZero() {
		at = t.clock.Now()
	}
	turnID := reply.Request.ID

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[turnID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownTurn, turnID)
	}
	if err := e.lifecycle.Answer(); err != nil {
		return e.record, fmt.Errorf("turn %s: %w", turnID, err)
	}
	delete(t.pending, turnID)

	rec := e.record
	rec.ResponseAt = at
	rec.DialogueLatency = at.Sub(rec.RequestSentAt)
	rec.TotalLatency = rec.RecognitionLatency + rec.DialogueLatency
	rec.ResponseMissing = reply.Missing()

	t.last = rec
	t.hasLast = true
	t.completed++
	t.metrics.RecordTurnLatency(rec.RecognitionLatency, rec.DialogueLatency)

	if rec.ResponseMissing {
		return rec, dialogue.ErrResponseMissing
	}
	return rec, nil
}

// Drop abandons a turn that will never be answered.
func (t *Tracker) Drop(turnID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pending[turnID]
	if !ok {
		return false
	}
	delete(t.pending, turnID)
	return e.lifecycle.Drop()
}

// DropAll abandons every open turn and returns how many were dropped.
func (t *Tracker) DropAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, e := range t.pending {
		if e.lifecycle.Drop() {
			n++
		}
		delete(t.pending, id)
	}
	return n
}

// Last returns the most recently completed turn.
func (t *Tracker) Last() (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// InFlight returns the number of open turns.
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Completed returns the number of turns completed so far.
func (t *Tracker) Completed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// LastChunkSent returns the last chunk-sent time and its sequence number.
func (t *Tracker) LastChunkSent() (time.Time, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastChunkSent, t.lastChunkSeq
}
