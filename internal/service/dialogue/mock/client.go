// Package mock provides a keyword-matching dialogue client for running
// without a dialogue service.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"voice-dialogue-service/internal/service/dialogue"
)

// Rule maps a keyword to an intent and a canned reply.
type Rule struct {
	Keyword string
	Intent  string
	Reply   string
}

// DefaultRules covers the utterances produced by the mock recognizer.
var DefaultRules = []Rule{
	{Keyword: "lights", Intent: "lights_on", Reply: "Turning on the lights."},
	{Keyword: "time", Intent: "ask_time", Reply: "It is time to ship."},
	{Keyword: "music", Intent: "play_music", Reply: "Playing your playlist."},
	{Keyword: "thank", Intent: "thanks", Reply: "You're welcome."},
}

// Client implements dialogue.Client.
type Client struct {
	Rules   []Rule
	Delay   time.Duration // Simulated service latency
	Missing bool          // Answer every request without a response
	Err     error         // Fail every request with this error
	Clock   clock.Clock   // Drives Delay; wall clock when nil

	mu       sync.Mutex
	requests []dialogue.Request
}

// New returns a client using DefaultRules.
func New() *Client {
	return &Client{Rules: DefaultRules, Clock: clock.New()}
}

// Message implements dialogue.Client.
func (c *Client) Message(ctx context.Context, req dialogue.Request) (*dialogue.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.Delay > 0 {
		clk := c.Clock
		if clk == nil {
			clk = clock.New()
		}
		timer := clk.Timer(c.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Missing {
		return nil, nil
	}

	text := strings.ToLower(req.Text)
	for _, r := range c.Rules {
		if strings.Contains(text, r.Keyword) {
			return &dialogue.Response{
				Text:    []string{r.Reply},
				Intents: []dialogue.Intent{{Name: r.Intent, Confidence: 0.9}},
			}, nil
		}
	}
	return &dialogue.Response{
		Text:    []string{"Sorry, I didn't understand."},
		Intents: []dialogue.Intent{{Name: "anything_else", Confidence: 0.3}},
	}, nil
}

// Requests returns the requests received so far.
func (c *Client) Requests() []dialogue.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dialogue.Request(nil), c.requests...)
}
