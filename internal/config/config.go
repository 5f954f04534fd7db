package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chatlibre/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderOllama = "ollama"
)

const (
	defaultPort           = 8080
	defaultTimeout        = 60 * time.Second
	defaultClaudeMaxToken = 4096
	defaultModel          = "gpt-4o-mini"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Translate TranslateConfig `yaml:"translate"`
	Languages LanguagesConfig `yaml:"languages"`
	Providers ProvidersConfig `yaml:"providers"`
	Models    []ModelConfig   `yaml:"models"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the host:port pair to listen on.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level             string `yaml:"level"`
	Format            string `yaml:"format"`
	SentryDSN         string `yaml:"sentry_dsn"`
	SentryEnvironment string `yaml:"sentry_environment"`
}

// TranslateConfig holds process-wide translation settings.
type TranslateConfig struct {
	// OutputMode applies to every model that does not set its own.
	OutputMode string `yaml:"output_mode"`
	// SystemPrompt replaces the built-in instruction; {{target}} is substituted.
	SystemPrompt string `yaml:"system_prompt"`
}

// LanguagesConfig points at an optional code,name[,native] CSV table.
type LanguagesConfig struct {
	File string `yaml:"file"`
}

// ProvidersConfig catalogues configured upstream providers.
type ProvidersConfig struct {
	OpenAI *ProviderConfig `yaml:"openai"`
	Claude *ProviderConfig `yaml:"claude"`
	Ollama *ProviderConfig `yaml:"ollama"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Headers   Headers       `yaml:"headers"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes one entry of the ordered fallback list.
type ModelConfig struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"`
	OutputMode string `yaml:"output_mode"`
}

// Default returns the configuration used when no file is given: a single
// OpenAI model with schema-constrained output on port 8080.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: defaultPort},
		Log:    LogConfig{Level: "info", Format: "text", SentryEnvironment: "production"},
		Translate: TranslateConfig{
			OutputMode: models.JSONSchema.String(),
		},
		Providers: ProvidersConfig{
			OpenAI: &ProviderConfig{BaseURL: "https://api.openai.com/v1"},
		},
		Models: []ModelConfig{{Name: defaultModel, Provider: ProviderOpenAI}},
	}
}

// Load reads YAML configuration from disk on top of the defaults, resolves
// secrets from the environment and validates the result. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.resolveSecrets(); err != nil {
		return Config{}, err
	}
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveSecrets fills missing API keys from OPENAI_API_KEY/ANTHROPIC_API_KEY
// and then from systemd credentials ($CREDENTIALS_DIRECTORY/<name>_key).
func (c *Config) resolveSecrets() error {
	sources := []struct {
		provider *ProviderConfig
		env      string
		file     string
	}{
		{c.Providers.OpenAI, "OPENAI_API_KEY", "openai_key"},
		{c.Providers.Claude, "ANTHROPIC_API_KEY", "anthropic_key"},
	}

	for _, src := range sources {
		if src.provider == nil || strings.TrimSpace(src.provider.APIKey) != "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(src.env)); v != "" {
			src.provider.APIKey = v
			continue
		}
		key, err := readCredential(src.file)
		if err != nil {
			return err
		}
		src.provider.APIKey = key
	}
	return nil
}

func readCredential(name string) (string, error) {
	dir := os.Getenv("CREDENTIALS_DIRECTORY")
	if dir == "" {
		return "", nil
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read credential %q: %w", path, err)
	}
	slog.Info("loaded API key from credentials", "path", path)
	return strings.TrimSpace(string(data)), nil
}

func (c *Config) applyProviderDefaults() {
	if p := c.Providers.OpenAI; p != nil && p.BaseURL == "" {
		p.BaseURL = "https://api.openai.com/v1"
	}
	if p := c.Providers.Claude; p != nil {
		if p.BaseURL == "" {
			p.BaseURL = "https://api.anthropic.com"
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = defaultClaudeMaxToken
		}
	}
	if p := c.Providers.Ollama; p != nil && p.BaseURL == "" {
		p.BaseURL = "http://localhost:11434"
	}
	for _, p := range []*ProviderConfig{c.Providers.OpenAI, c.Providers.Claude, c.Providers.Ollama} {
		if p != nil && p.Timeout == 0 {
			p.Timeout = defaultTimeout
		}
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	if _, err := models.ParseOutputMode(c.Translate.OutputMode); err != nil {
		return fmt.Errorf("translate.output_mode: %w", err)
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be configured")
	}

	seen := make(map[string]struct{}, len(c.Models))
	for i, model := range c.Models {
		if strings.TrimSpace(model.Name) == "" {
			return fmt.Errorf("models[%d]: name must not be empty", i)
		}
		if _, dup := seen[model.Name]; dup {
			return fmt.Errorf("models[%d]: model %q listed twice", i, model.Name)
		}
		seen[model.Name] = struct{}{}

		if model.OutputMode != "" {
			if _, err := models.ParseOutputMode(model.OutputMode); err != nil {
				return fmt.Errorf("models[%d]: %w", i, err)
			}
		}

		provider, err := c.Providers.lookup(model.Provider)
		if err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		if err := validateProvider(model.Provider, *provider); err != nil {
			return err
		}
	}

	return nil
}

func (p ProvidersConfig) lookup(name string) (*ProviderConfig, error) {
	var cfg *ProviderConfig
	switch name {
	case ProviderOpenAI:
		cfg = p.OpenAI
	case ProviderClaude:
		cfg = p.Claude
	case ProviderOllama:
		cfg = p.Ollama
	default:
		return nil, fmt.Errorf("provider %q must be one of %q, %q or %q", name, ProviderOpenAI, ProviderClaude, ProviderOllama)
	}
	if cfg == nil {
		return nil, fmt.Errorf("provider %q is referenced but not configured", name)
	}
	return cfg, nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if name != ProviderOllama && strings.TrimSpace(provider.APIKey) == "" {
		return fmt.Errorf("provider %s: api_key must be provided", name)
	}
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	if provider.Timeout < 0 {
		return fmt.Errorf("provider %s: timeout must not be negative", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	return nil
}

// Candidates resolves the ordered fallback list, applying the process-wide
// output mode to models that do not override it.
func (c Config) Candidates() ([]models.ModelCandidate, error) {
	fallback, err := models.ParseOutputMode(c.Translate.OutputMode)
	if err != nil {
		return nil, fmt.Errorf("translate.output_mode: %w", err)
	}

	out := make([]models.ModelCandidate, 0, len(c.Models))
	for _, m := range c.Models {
		mode := fallback
		if m.OutputMode != "" {
			if mode, err = models.ParseOutputMode(m.OutputMode); err != nil {
				return nil, fmt.Errorf("model %s: %w", m.Name, err)
			}
		}
		out = append(out, models.ModelCandidate{
			Name:       m.Name,
			Provider:   m.Provider,
			OutputMode: mode,
		})
	}
	return out, nil
}

// ParseLevel maps a log.level value onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", level)
	}
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
