// Package dialogue defines the contract with the dialogue/intent service and
// dispatches requests to it asynchronously.
package dialogue

import (
	"context"
	"errors"
	"time"
)

// ErrResponseMissing is reported when the dialogue service produced no response.
var ErrResponseMissing = errors.New("dialogue response missing")

// Request is one utterance sent to the dialogue service.
type Request struct {
	ID          string // Correlation id, the utterance's turn id
	SessionID   string
	WorkspaceID string
	Text        string
}

// Intent is a classified intent with its confidence.
type Intent struct {
	Name       string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Response is the dialogue service's answer to a Request.
type Response struct {
	Text    []string `json:"text"`
	Intents []Intent `json:"intents"`
}

// FirstText returns the first output text, or "".
func (r *Response) FirstText() string {
	if r == nil || len(r.Text) == 0 {
		return ""
	}
	return r.Text[0]
}

// TopIntent returns the first intent, if any.
func (r *Response) TopIntent() (Intent, bool) {
	if r == nil || len(r.Intents) == 0 {
		return Intent{}, false
	}
	return r.Intents[0], true
}

// Client sends a message to the dialogue service. A nil response with a nil
// error means the service answered without a result.
type Client interface {
	Message(ctx context.Context, req Request) (*Response, error)
}

// Reply pairs a request with whatever came back for it.
type Reply struct {
	Request    Request
	Response   *Response // nil when missing
	Err        error     // transport or service error, if any
	ReceivedAt time.Time
}

// Missing reports whether the reply carries no response.
func (r Reply) Missing() bool {
	return r.Response == nil
}
