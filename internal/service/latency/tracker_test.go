package latency

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"voice-dialogue-service/internal/service/dialogue"
	"voice-dialogue-service/internal/service/segment"
)

func newTestTracker() (*Tracker, *clock.Mock) {
	mock := clock.NewMock()
	return NewTracker("sess", segment.New(), mock, nil), mock
}

func reply(id string, at time.Time, resp *dialogue.Response) dialogue.Reply {
	return dialogue.Reply{Request: dialogue.Request{ID: id}, Response: resp, ReceivedAt: at}
}

func TestTracker_Latencies(t *testing.T) {
	tr, mock := newTestTracker()

	tr.MarkChunkSent(1) // t=0
	mock.Add(120 * time.Millisecond)
	rec := tr.Begin("turn on the lights")
	if _, err := tr.MarkRequestSent(rec.TurnID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock.Add(220 * time.Millisecond)

	got, err := tr.Complete(reply(rec.TurnID, mock.Now(), &dialogue.Response{Text: []string{"ok"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.RecognitionLatency != 120*time.Millisecond {
		t.Errorf("expected recognition latency 120ms, got %v", got.RecognitionLatency)
	}
	if got.DialogueLatency != 220*time.Millisecond {
		t.Errorf("expected dialogue latency 220ms, got %v", got.DialogueLatency)
	}
	if got.TotalLatency != 340*time.Millisecond {
		t.Errorf("expected total latency 340ms, got %v", got.TotalLatency)
	}
	if got.ResponseMissing {
		t.Error("expected response present")
	}

	last, ok := tr.Last()
	if !ok || last.TurnID != rec.TurnID {
		t.Errorf("expected last turn %s, got %+v", rec.TurnID, last)
	}
	if tr.InFlight() != 0 {
		t.Errorf("expected no turns in flight, got %d", tr.InFlight())
	}
}

func TestTracker_MissingResponseStillRecordsLatency(t *testing.T) {
	tr, mock := newTestTracker()

	tr.MarkChunkSent(1)
	mock.Add(50 * time.Millisecond)
	rec := tr.Begin("hello")
	tr.MarkRequestSent(rec.TurnID)
	mock.Add(80 * time.Millisecond)

	got, err := tr.Complete(reply(rec.TurnID, mock.Now(), nil))
	if !errors.Is(err, dialogue.ErrResponseMissing) {
		t.Fatalf("expected ErrResponseMissing, got %v", err)
	}
	if !got.ResponseMissing {
		t.Error("expected ResponseMissing to be set")
	}
	if got.DialogueLatency != 80*time.Millisecond {
		t.Errorf("expected dialogue latency 80ms, got %v", got.DialogueLatency)
	}
	if got.TotalLatency != 130*time.Millisecond {
		t.Errorf("expected total latency 130ms, got %v", got.TotalLatency)
	}
	if last, _ := tr.Last(); last.TurnID != rec.TurnID {
		t.Errorf("expected missing reply recorded as last, got %s", last.TurnID)
	}
}

func TestTracker_OverlappingTurnsKeepOwnTimestamps(t *testing.T) {
	tr, mock := newTestTracker()

	tr.MarkChunkSent(1) // t=0
	mock.Add(100 * time.Millisecond)
	first := tr.Begin("first") // t=100
	tr.MarkRequestSent(first.TurnID)

	mock.Add(100 * time.Millisecond)
	tr.MarkChunkSent(2) // t=200
	mock.Add(50 * time.Millisecond)
	second := tr.Begin("second") // t=250
	tr.MarkRequestSent(second.TurnID)

	// Second reply arrives before the first.
	mock.Add(50 * time.Millisecond) // t=300
	r2, err := tr.Complete(reply(second.TurnID, mock.Now(), &dialogue.Response{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock.Add(100 * time.Millisecond) // t=400
	r1, err := tr.Complete(reply(first.TurnID, mock.Now(), &dialogue.Response{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r1.RecognitionLatency != 100*time.Millisecond || r1.DialogueLatency != 300*time.Millisecond {
		t.Errorf("first: expected 100ms/300ms, got %v/%v", r1.RecognitionLatency, r1.DialogueLatency)
	}
	if r2.RecognitionLatency != 50*time.Millisecond || r2.DialogueLatency != 50*time.Millisecond {
		t.Errorf("second: expected 50ms/50ms, got %v/%v", r2.RecognitionLatency, r2.DialogueLatency)
	}
	if last, _ := tr.Last(); last.TurnID != first.TurnID {
		t.Errorf("expected last completed to be %s, got %s", first.TurnID, last.TurnID)
	}
}

func TestTracker_NoChunkSentYet(t *testing.T) {
	tr, _ := newTestTracker()

	rec := tr.Begin("early")
	if rec.RecognitionLatency != 0 {
		t.Errorf("expected zero recognition latency, got %v", rec.RecognitionLatency)
	}
	if !rec.ChunkSentAt.IsZero() {
		t.Errorf("expected zero chunk time, got %v", rec.ChunkSentAt)
	}
}

func TestTracker_InvalidCompletions(t *testing.T) {
	tr, mock := newTestTracker()

	if _, err := tr.Complete(reply("nope", mock.Now(), nil)); !errors.Is(err, ErrUnknownTurn) {
		t.Errorf("expected ErrUnknownTurn, got %v", err)
	}

	rec := tr.Begin("not sent")
	if _, err := tr.Complete(reply(rec.TurnID, mock.Now(), nil)); !errors.Is(err, segment.ErrNotDispatched) {
		t.Errorf("expected ErrNotDispatched, got %v", err)
	}

	tr.MarkRequestSent(rec.TurnID)
	if _, err := tr.MarkRequestSent(rec.TurnID); !errors.Is(err, segment.ErrAlreadyDispatched) {
		t.Errorf("expected ErrAlreadyDispatched, got %v", err)
	}

	tr.Complete(reply(rec.TurnID, mock.Now(), &dialogue.Response{}))
	if _, err := tr.Complete(reply(rec.TurnID, mock.Now(), &dialogue.Response{})); !errors.Is(err, ErrUnknownTurn) {
		t.Errorf("expected duplicate completion to fail with ErrUnknownTurn, got %v", err)
	}
	if tr.Completed() != 1 {
		t.Errorf("expected 1 completed turn, got %d", tr.Completed())
	}
}

func TestTracker_Drop(t *testing.T) {
	tr, mock := newTestTracker()

	a := tr.Begin("a")
	b := tr.Begin("b")
	tr.MarkRequestSent(a.TurnID)

	if !tr.Drop(a.TurnID) {
		t.Error("expected drop of open turn to succeed")
	}
	if tr.Drop(a.TurnID) {
		t.Error("expected second drop to fail")
	}
	if _, err := tr.Complete(reply(a.TurnID, mock.Now(), nil)); !errors.Is(err, ErrUnknownTurn) {
		t.Errorf("expected ErrUnknownTurn after drop, got %v", err)
	}

	if n := tr.DropAll(); n != 1 {
		t.Errorf("expected 1 turn dropped, got %d", n)
	}
	if _, err := tr.MarkRequestSent(b.TurnID); !errors.Is(err, ErrUnknownTurn) {
		t.Errorf("expected ErrUnknownTurn after DropAll, got %v", err)
	}
	if _, ok := tr.Last(); ok {
		t.Error("expected no completed turn")
	}
}

func TestTracker_TurnIDs(t *testing.T) {
	tr, _ := newTestTracker()

	if id := tr.Begin("x").TurnID; id != "sess-turn-1" {
		t.Errorf("expected sess-turn-1, got %s", id)
	}
	if id := tr.Begin("y").TurnID; id != "sess-turn-2" {
		t.Errorf("expected sess-turn-2, got %s", id)
	}
}
