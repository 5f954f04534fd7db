package translate_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"chatlibre/internal/languages"
	"chatlibre/internal/models"
	"chatlibre/internal/provider"
	"chatlibre/internal/translate"
)

type reply struct {
	resp *provider.ChatResponse
	err  error
}

// scriptedProvider answers each model from a fixed reply and records calls.
type scriptedProvider struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []provider.ChatRequest
}

func newScriptedProvider(replies map[string]reply) *scriptedProvider {
	return &scriptedProvider{replies: replies}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	r := p.replies[req.Model]
	p.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return r.resp, nil
}

func (p *scriptedProvider) models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.Model)
	}
	return out
}

func (p *scriptedProvider) lastCall() provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1]
}

func content(s string) reply {
	return reply{resp: &provider.ChatResponse{Content: s, Usage: models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}}
}

func failing(err error) reply {
	return reply{err: err}
}

func newRegistry(t *testing.T, p provider.Provider, names ...string) *provider.Registry {
	t.Helper()

	reg := provider.NewRegistry()
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	for _, name := range names {
		if err := reg.Bind(name, p.Name()); err != nil {
			t.Fatalf("bind %s: %v", name, err)
		}
	}
	return reg
}

func newLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func newInvoker(t *testing.T, p provider.Provider, names ...string) *translate.Invoker {
	t.Helper()

	logger, _ := newLogger()
	return translate.NewInvoker(newRegistry(t, p, names...), translate.NewPromptBuilder(languages.New(), ""), logger)
}

func candidate(name string, mode models.OutputMode) models.ModelCandidate {
	return models.ModelCandidate{Name: name, Provider: "scripted", OutputMode: mode}
}
