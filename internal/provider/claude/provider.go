package claude

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
	apiVersion      = "2023-06-01"

	// jsonPrefill opens the assistant turn so the model continues a JSON object.
	jsonPrefill = "{"
)

// Provider implements Anthropic Claude API interactions.
type Provider struct {
	name      string
	apiKey    string
	headers   map[string]string
	client    *http.Client
	maxTokens int
	messages  string
}

// New constructs a Claude provider instance.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		return nil, errors.New("claude requests require a positive max_tokens value")
	}

	return &Provider{
		name:      name,
		apiKey:    cfg.APIKey,
		headers:   cfg.Headers,
		client:    client,
		maxTokens: cfg.MaxTokens,
		messages:  baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	payload, err := buildMessagePayload(req, p.maxTokens)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.messages, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: claude chat request failed: %w", provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var providerResp messageResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toChatResponse(req.Mode)
}

func (p *Provider) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type messagePayload struct {
	Model      string      `json:"model"`
	Messages   []message   `json:"messages"`
	System     string      `json:"system,omitempty"`
	MaxTokens  int         `json:"max_tokens"`
	Tools      []tool      `json:"tools,omitempty"`
	ToolChoice *toolChoice `json:"tool_choice,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// buildMessagePayload shapes the output mode: json_object prefills the
// assistant turn with an opening brace, json_schema forces a tool call whose
// input schema is the result schema.
func buildMessagePayload(req provider.ChatRequest, maxTokens int) (messagePayload, error) {
	text := strings.TrimSpace(req.User)
	if text == "" {
		return messagePayload{}, errors.New("claude messages must not be empty")
	}

	payload := messagePayload{
		Model:     req.Model,
		System:    req.System,
		MaxTokens: maxTokens,
		Messages: []message{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: text}}},
		},
	}

	switch req.Mode {
	case models.FreeText:
	case models.JSONObject:
		payload.Messages = append(payload.Messages, message{
			Role:    "assistant",
			Content: []contentBlock{{Type: "text", Text: jsonPrefill}},
		})
	case models.JSONSchema:
		if req.Schema == nil {
			return messagePayload{}, errors.New("json_schema mode requires a schema")
		}
		payload.Tools = []tool{{
			Name:        req.Schema.Name,
			Description: req.Schema.Description,
			InputSchema: req.Schema.Definition,
		}}
		payload.ToolChoice = &toolChoice{Type: "tool", Name: req.Schema.Name}
	default:
		return messagePayload{}, fmt.Errorf("unsupported output mode %s", req.Mode)
	}

	return payload, nil
}

type messageResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Usage      usageBlock     `json:"usage"`
	StopReason string         `json:"stop_reason"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r messageResponse) toChatResponse(mode models.OutputMode) (*provider.ChatResponse, error) {
	if len(r.Content) == 0 {
		return nil, fmt.Errorf("%w: claude response missing content blocks", provider.ErrUpstream)
	}

	resp := &provider.ChatResponse{
		Model:        r.Model,
		FinishReason: r.StopReason,
		Usage: models.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}

	text := strings.Builder{}
	for _, block := range r.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			if resp.Structured == nil {
				resp.Structured = block.Input
			}
		}
	}

	resp.Content = text.String()
	if mode == models.JSONObject && resp.Structured == nil {
		resp.Content = jsonPrefill + resp.Content
	}
	return resp, nil
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return provider.StatusError(resp.StatusCode, "failed to read body: "+err.Error())
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return provider.StatusError(resp.StatusCode, fmt.Sprintf("claude error (%s): %s", apiErr.Error.Type, apiErr.Error.Message))
	}

	return provider.StatusError(resp.StatusCode, strings.TrimSpace(string(body)))
}

func decodeJSON(reader io.Reader, target any) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("%w: read provider response: %w", provider.ErrTransport, err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: decode provider response: %w", provider.ErrUpstream, err)
	}
	return nil
}
