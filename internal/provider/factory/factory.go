package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chatlibre/internal/config"
	"chatlibre/internal/provider"
	claudeProvider "chatlibre/internal/provider/claude"
	ollamaProvider "chatlibre/internal/provider/ollama"
	openaiProvider "chatlibre/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewRegistry constructs the configured providers and binds every model of
// the fallback list to its provider.
func NewRegistry(cfg config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	if err := RegisterConfiguredProviders(cfg, registry); err != nil {
		return nil, err
	}

	for _, model := range cfg.Models {
		if err := registry.Bind(model.Name, model.Provider); err != nil {
			return nil, fmt.Errorf("bind model %s: %w", model.Name, err)
		}
	}
	return registry, nil
}

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	if pc := cfg.Providers.OpenAI; pc != nil {
		p, err := openaiProvider.New(config.ProviderOpenAI, *pc, newHTTPClient(pc.Timeout))
		if err != nil {
			return fmt.Errorf("initialise openai provider: %w", err)
		}
		if err := registry.RegisterProvider(p); err != nil {
			return fmt.Errorf("register openai provider: %w", err)
		}
	}

	if pc := cfg.Providers.Claude; pc != nil {
		p, err := claudeProvider.New(config.ProviderClaude, *pc, newHTTPClient(pc.Timeout))
		if err != nil {
			return fmt.Errorf("initialise claude provider: %w", err)
		}
		if err := registry.RegisterProvider(p); err != nil {
			return fmt.Errorf("register claude provider: %w", err)
		}
	}

	if pc := cfg.Providers.Ollama; pc != nil {
		p, err := ollamaProvider.New(config.ProviderOllama, *pc, newHTTPClient(pc.Timeout))
		if err != nil {
			return fmt.Errorf("initialise ollama provider: %w", err)
		}
		if err := registry.RegisterProvider(p); err != nil {
			return fmt.Errorf("register ollama provider: %w", err)
		}
	}

	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
