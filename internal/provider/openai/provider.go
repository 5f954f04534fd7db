package openai

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
	maxErrorBody    = 64 * 1024
)

// Provider implements the Provider interface for OpenAI-compatible APIs.
type Provider struct {
	name    string
	apiKey  string
	headers map[string]string
	client  *http.Client
	chatURL string
}

// New creates a new OpenAI provider.
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
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  client,
		chatURL: baseURL + "/chat/completions",
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

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.chatURL, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: openai chat request failed: %w", provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, err
	}

	return providerResp.toChatResponse()
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Strict      bool           `json:"strict"`
	Schema      map[string]any `json:"schema"`
}

func buildChatPayload(req provider.ChatRequest) (chatPayload, error) {
	if strings.TrimSpace(req.User) == "" {
		return chatPayload{}, errors.New("user message must not be empty")
	}

	payload := chatPayload{
		Model: req.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}

	switch req.Mode {
	case models.FreeText:
	case models.JSONObject:
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	case models.JSONSchema:
		if req.Schema == nil {
			return chatPayload{}, errors.New("json_schema mode requires a schema")
		}
		payload.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:        req.Schema.Name,
				Description: req.Schema.Description,
				Strict:      true,
				Schema:      req.Schema.Definition,
			},
		}
	default:
		return chatPayload{}, fmt.Errorf("unsupported output mode %s", req.Mode)
	}

	return payload, nil
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
	Refusal *string `json:"refusal"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) toChatResponse() (*provider.ChatResponse, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response did not include choices", provider.ErrUpstream)
	}

	choice := r.Choices[0]
	return &provider.ChatResponse{
		Model:        r.Model,
		Content:      valueOrZero(choice.Message.Content, func(s *string) string { return *s }),
		Refusal:      valueOrZero(choice.Message.Refusal, func(s *string) string { return *s }),
		FinishReason: choice.FinishReason,
		Usage: models.Usage{
			PromptTokens:     valueOrZero(r.Usage, func(u *usageBlock) int { return u.PromptTokens }),
			CompletionTokens: valueOrZero(r.Usage, func(u *usageBlock) int { return u.CompletionTokens }),
			TotalTokens:      valueOrZero(r.Usage, func(u *usageBlock) int { return u.TotalTokens }),
		},
	}, nil
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return provider.StatusError(resp.StatusCode, "failed to read body: "+err.Error())
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return provider.StatusError(resp.StatusCode, fmt.Sprintf("openai error (%s): %s", apiErr.Error.Type, apiErr.Error.Message))
	}

	return provider.StatusError(resp.StatusCode, strings.TrimSpace(string(body)))
}

// decodeJSON separates a broken connection (transport) from a body that
// arrived but is not a valid envelope (upstream).
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

func valueOrZero[T any, R any](ptr *T, getter func(*T) R) R {
	var zero R
	if ptr == nil {
		return zero
	}
	return getter(ptr)
}
