package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strings"

	"chatlibre/internal/models"
	"chatlibre/internal/provider"
)

// ModelLookup resolves the provider serving a model name.
type ModelLookup interface {
	Lookup(model string) (provider.Provider, error)
}

// Invoker performs exactly one remote call against one model and validates
// the reply.
type Invoker struct {
	lookup  ModelLookup
	prompts *PromptBuilder
	schema  *provider.Schema
	logger  *slog.Logger
}

// NewInvoker constructs an Invoker. A nil logger falls back to slog.Default.
func NewInvoker(lookup ModelLookup, prompts *PromptBuilder, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		lookup:  lookup,
		prompts: prompts,
		schema:  ResultSchema(),
		logger:  logger,
	}
}

// Invoke translates req with candidate. Any error is a *Failure.
func (i *Invoker) Invoke(ctx context.Context, req models.TranslationRequest, candidate models.ModelCandidate) (models.TranslationResult, error) {
	p, err := i.lookup.Lookup(candidate.Name)
	if err != nil {
		return models.TranslationResult{}, &Failure{Kind: UpstreamError, Model: candidate.Name, Err: err}
	}

	user, err := encodeTexts(req.Texts)
	if err != nil {
		return models.TranslationResult{}, &Failure{Kind: UpstreamError, Model: candidate.Name, Err: err}
	}

	chatReq := provider.ChatRequest{
		Model:  candidate.Name,
		System: i.prompts.Build(req.Target),
		User:   user,
		Mode:   candidate.OutputMode,
	}
	if candidate.OutputMode == models.JSONSchema {
		chatReq.Schema = i.schema
	}

	resp, err := p.Chat(ctx, chatReq)
	if err != nil {
		return models.TranslationResult{}, classify(candidate.Name, err)
	}

	result, failure := parseReply(candidate.Name, resp, len(req.Texts))
	if failure != nil {
		return models.TranslationResult{}, failure
	}
	result.Single = req.Single

	resolved := resp.Model
	if resolved == "" {
		resolved = candidate.Name
	}
	result.Model = resolved

	i.logger.InfoContext(ctx, "translated",
		"model", resolved,
		"detected", result.DetectedLanguage.Language,
		"target", req.Target,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return result, nil
}

// encodeTexts renders the batch as a JSON array without escaping markup.
func encodeTexts(texts []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(texts); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

type replyEnvelope struct {
	DetectedLanguage *struct {
		Language   *string      `json:"language"`
		Confidence *json.Number `json:"confidence"`
	} `json:"detectedLanguage"`
	TranslatedText json.RawMessage `json:"translatedText"`
}

func parseReply(model string, resp *provider.ChatResponse, want int) (models.TranslationResult, *Failure) {
	if resp.Refusal != "" {
		return models.TranslationResult{}, decodeFailure(model, "model refused: %s", resp.Refusal)
	}

	raw := []byte(resp.Structured)
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte(extractJSONObject(resp.Content))
	}
	if len(raw) == 0 {
		return models.TranslationResult{}, decodeFailure(model, "empty reply (finish reason %q)", resp.FinishReason)
	}

	var env replyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.TranslationResult{}, decodeFailure(model, "reply is not a JSON object: %w", err)
	}

	dl := env.DetectedLanguage
	if dl == nil || dl.Language == nil || strings.TrimSpace(*dl.Language) == "" {
		return models.TranslationResult{}, decodeFailure(model, "reply lacks detectedLanguage.language")
	}
	if dl.Confidence == nil {
		return models.TranslationResult{}, decodeFailure(model, "reply lacks detectedLanguage.confidence")
	}
	confidence, err := dl.Confidence.Float64()
	if err != nil || confidence <= 0 || confidence != math.Trunc(confidence) || confidence > math.MaxInt32 {
		return models.TranslationResult{}, decodeFailure(model, "confidence %s is not a positive integer", dl.Confidence.String())
	}

	var texts []*string
	if err := json.Unmarshal(env.TranslatedText, &texts); err != nil || env.TranslatedText == nil {
		return models.TranslationResult{}, decodeFailure(model, "translatedText is not an array of strings")
	}
	if len(texts) != want {
		return models.TranslationResult{}, decodeFailure(model, "translatedText has %d elements, want %d", len(texts), want)
	}

	out := make([]string, len(texts))
	for idx, s := range texts {
		if s == nil {
			return models.TranslationResult{}, decodeFailure(model, "translatedText[%d] is null", idx)
		}
		out[idx] = *s
	}

	return models.TranslationResult{
		DetectedLanguage: models.DetectedLanguage{
			Language:   strings.TrimSpace(*dl.Language),
			Confidence: int(confidence),
		},
		TranslatedText: out,
	}, nil
}

// extractJSONObject strips Markdown code fences and any prose around the
// outermost object, which free-text replies often carry.
func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "{") {
		return s
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
