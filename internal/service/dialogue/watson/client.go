// Package watson provides a dialogue client for the Watson Assistant v1
// message API, which classifies an utterance against a workspace.
package watson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"voice-dialogue-service/internal/service/dialogue"
)

// DefaultVersion is the API version date sent with every request.
const DefaultVersion = "2018-09-20"

// Config holds Watson Assistant connection settings.
type Config struct {
	URL     string // Service instance URL
	APIKey  string
	Version string
	Timeout time.Duration
}

// Client implements dialogue.Client over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Watson Assistant client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("watson: URL cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("watson: API key cannot be empty")
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type messageRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
}

type messageResponse struct {
	Output *struct {
		Text []string `json:"text"`
	} `json:"output"`
	Intents []dialogue.Intent `json:"intents"`
}

// Message implements dialogue.Client. A 2xx reply without an output block
// yields a nil response.
func (c *Client) Message(ctx context.Context, req dialogue.Request) (*dialogue.Response, error) {
	var body messageRequest
	body.Input.Text = req.Text
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/message?version=%s",
		c.cfg.URL, url.PathEscape(req.WorkspaceID), url.QueryEscape(c.cfg.Version))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth("apikey", c.cfg.APIKey)
	if req.ID != "" {
		httpReq.Header.Set("X-Request-Id", req.ID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("watson: status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var msg messageResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if msg.Output == nil {
		return nil, nil
	}
	return &dialogue.Response{Text: msg.Output.Text, Intents: msg.Intents}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
