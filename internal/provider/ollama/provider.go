// Package ollama talks to a local Ollama daemon through its /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatlibre/internal/config"
	"chatlibre/internal/models"
	"chatlibre/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "chatlibre/0.2"
)

// Provider implements the Provider interface for Ollama.
type Provider struct {
	name    string
	headers map[string]string
	client  *http.Client
	chatURL string
}

// New creates a new Ollama provider.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		name:    name,
		headers: cfg.Headers,
		client:  client,
		chatURL: baseURL + "/api/chat",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	payload, err := buildChatPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama chat request failed: %w", provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read ollama response: %w", provider.ErrTransport, err)
	}

	if httpResp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		detail := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			detail = apiErr.Error
		}
		return nil, provider.StatusError(httpResp.StatusCode, fmt.Sprintf("ollama error (model %s): %s", req.Model, detail))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %w", provider.ErrUpstream, err)
	}

	return &provider.ChatResponse{
		Model:        chat.Model,
		Content:      chat.Message.Content,
		FinishReason: chat.DoneReason,
		Usage: models.Usage{
			PromptTokens:     chat.PromptEvalCount,
			CompletionTokens: chat.EvalCount,
			TotalTokens:      chat.PromptEvalCount + chat.EvalCount,
		},
	}, nil
}

type chatPayload struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	// Format is "json" or a JSON schema object.
	Format  any            `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildChatPayload(req provider.ChatRequest) (chatPayload, error) {
	if strings.TrimSpace(req.User) == "" {
		return chatPayload{}, errors.New("user message must not be empty")
	}

	payload := chatPayload{
		Model: req.Model,
		Messages: []message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Options: map[string]any{"temperature": 0.2},
	}

	switch req.Mode {
	case models.FreeText:
	case models.JSONObject:
		payload.Format = "json"
	case models.JSONSchema:
		if req.Schema == nil {
			return chatPayload{}, errors.New("json_schema mode requires a schema")
		}
		payload.Format = req.Schema.Definition
	default:
		return chatPayload{}, fmt.Errorf("unsupported output mode %s", req.Mode)
	}

	return payload, nil
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}
