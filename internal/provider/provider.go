package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"chatlibre/internal/models"
)

// Failure signals raised by provider adapters. Every error returned from
// Provider.Chat wraps exactly one of them.
var (
	// ErrRateLimited indicates the upstream throttled the request (HTTP 429).
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUpstream indicates any other API-level failure.
	ErrUpstream = errors.New("upstream api error")
	// ErrTransport indicates the upstream could not be reached or the exchange broke off.
	ErrTransport = errors.New("upstream transport error")
)

// Provider performs a single chat exchange against a remote LLM API.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Schema is a named JSON schema used for schema-constrained output.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// ChatRequest is one system+user exchange with a requested output mode.
type ChatRequest struct {
	Model  string
	System string
	User   string
	Mode   models.OutputMode
	// Schema is set when Mode is JSONSchema.
	Schema *Schema
}

// ChatResponse captures the parts of an upstream reply the translator needs.
type ChatResponse struct {
	// Model is the model name reported by the upstream, which may be more
	// specific than the requested alias.
	Model   string
	Content string
	// Structured holds an already-parsed object when the upstream offers one
	// (for example a forced tool call); it takes precedence over Content.
	Structured   json.RawMessage
	Refusal      string
	FinishReason string
	Usage        models.Usage
}

// StatusError classifies an upstream HTTP error status.
func StatusError(status int, detail string) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, status, detail)
	}
	return fmt.Errorf("%w: status %d: %s", ErrUpstream, status, detail)
}
