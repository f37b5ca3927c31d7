// Package gemini provides a dialogue client backed by a Gemini model that
// replies and classifies intents in one structured JSON answer.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"voice-dialogue-service/internal/service/dialogue"
)

const systemPrompt = `You are the dialogue engine of a voice assistant (workspace %q).
Reply to the user's utterance and classify its intent.
Answer with JSON only: {"text": ["<short spoken reply>"], "intents": [{"intent": "<snake_case_name>", "confidence": <0..1>}]}.
List intents from most to least likely.`

// Config holds Gemini settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// DefaultConfig returns the default model settings.
func DefaultConfig() Config {
	return Config{
		Model:       "gemini-2.0-flash",
		Temperature: 0.2,
	}
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements dialogue.Client with Gemini.
type Client struct {
	cfg    Config
	models generator
}

// New creates a Gemini dialogue client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{cfg: cfg, models: client.Models}, nil
}

// Message implements dialogue.Client. An empty model answer yields a nil response.
func (c *Client) Message(ctx context.Context, req dialogue.Request) (*dialogue.Response, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(systemPrompt, req.WorkspaceID), genai.RoleUser),
		Temperature:       genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Text, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	return parseAnswer(resp.Text())
}

// parseAnswer decodes the model's JSON answer, tolerating a fenced code block.
func parseAnswer(text string) (*dialogue.Response, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var resp dialogue.Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("decode model answer: %w", err)
	}
	if len(resp.Text) == 0 && len(resp.Intents) == 0 {
		return nil, nil
	}
	return &resp, nil
}
