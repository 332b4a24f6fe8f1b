// Package ai wraps an OpenAI-compatible chat completions endpoint. Every
// pipeline stage that talks to a model goes through this client, so stage
// code deals with prompts and responses, not HTTP.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoChoices is returned when the model responds without any completion.
var ErrNoChoices = errors.New("no choices in model response")

// Config for the chat client.
type Config struct {
	APIKey      string        // bearer token
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // text model, e.g. "gpt-4o-mini"
	VisionModel string        // model used when a request carries image data
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// ChatRequest describes a single completion call. When ImageData is set the
// user message becomes a multimodal part list and the vision model is used.
type ChatRequest struct {
	System    string
	User      string
	ImageData []byte
	ImageMIME string
	JSONMode  bool
}

// Complete sends the request and returns the first choice's content,
// trimmed. The caller owns parsing; JSONMode only asks the endpoint to
// constrain its output to a JSON object.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	start := time.Now()

	model := c.cfg.Model
	var userContent any = req.User
	if len(req.ImageData) > 0 {
		model = c.cfg.VisionModel
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.ImageMIME, base64.StdEncoding.EncodeToString(req.ImageData))
		userContent = []map[string]any{
			{"type": "text", "text": req.User},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}
	}

	messages := []map[string]any{}
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]any{"role": "user", "content": userContent})

	body := map[string]any{
		"model":       model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if req.JSONMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	c.log.Debug().
		Str("model", model).
		Bool("vision", len(req.ImageData) > 0).
		Bool("json_mode", req.JSONMode).
		Int("user_len", len(req.User)).
		Msg("model call start")

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("model", model).
			Dur("elapsed", time.Since(start)).
			Msg("model call failed")
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", ErrNoChoices
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.log.Debug().
		Str("model", model).
		Int("content_len", len(content)).
		Dur("elapsed", time.Since(start)).
		Msg("model call ok")
	return content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("model status %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
