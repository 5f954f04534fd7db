package translate_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlibre/internal/languages"
	"chatlibre/internal/models"
	"chatlibre/internal/provider"
	"chatlibre/internal/translate"
)

const (
	validSingle = `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["<p>Salut</p>"]}`
	validPair   = `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["A-de","B-de"]}`
)

func newOrchestrator(t *testing.T, p *scriptedProvider, names ...string) (*translate.Orchestrator, *bytes.Buffer) {
	t.Helper()

	logger, buf := newLogger()
	inv := translate.NewInvoker(newRegistry(t, p, names...), translate.NewPromptBuilder(languages.New(), ""), logger)

	candidates := make([]models.ModelCandidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, candidate(name, models.JSONSchema))
	}
	o, err := translate.New(candidates, inv, logger)
	require.NoError(t, err)
	return o, buf
}

func TestTranslateFirstModelWins(t *testing.T) {
	t.Parallel()

	p := newScriptedProvider(map[string]reply{
		"first":  content(validSingle),
		"second": content(validSingle),
	})
	o, _ := newOrchestrator(t, p, "first", "second")

	res, err := o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"<p>Hi</p>"}, Target: "fr", Single: true})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Model)
	assert.Equal(t, []string{"first"}, p.models())
}

func TestTranslateFallsBackOnDecodeError(t *testing.T) {
	t.Parallel()

	p := newScriptedProvider(map[string]reply{
		"cheap":   content(`{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["only one"]}`),
		"capable": content(validPair),
	})
	o, buf := newOrchestrator(t, p, "cheap", "capable")

	res, err := o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"A", "B"}, Target: "de"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A-de", "B-de"}, res.TranslatedText)
	assert.Equal(t, "capable", res.Model)
	assert.Equal(t, []string{"cheap", "capable"}, p.models())
	assert.Contains(t, buf.String(), "model reply rejected")
	assert.NotContains(t, buf.String(), "all models failed")
}

func TestTranslateStopsOnFatalFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantErr error
		kind    translate.FailureKind
	}{
		{"rate limited", provider.StatusError(429, "quota exceeded"), translate.ErrTooManyRequests, translate.RateLimited},
		{"upstream", provider.StatusError(502, "bad gateway"), translate.ErrServiceUnavailable, translate.UpstreamError},
		{"transport", fmt.Errorf("%w: i/o timeout", provider.ErrTransport), translate.ErrServiceUnavailable, translate.TransportError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newScriptedProvider(map[string]reply{
				"decodes-badly": content(`not json`),
				"fails":         failing(tt.err),
				"never-called":  content(validPair),
			})
			o, buf := newOrchestrator(t, p, "decodes-badly", "fails", "never-called")

			_, err := o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"A", "B"}, Target: "de"})
			require.ErrorIs(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, translate.ErrAllModelsFailed)

			var failure *translate.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.kind, failure.Kind)
			assert.Equal(t, "fails", failure.Model)

			assert.Equal(t, []string{"decodes-badly", "fails"}, p.models())
			assert.NotContains(t, buf.String(), "all models failed")
		})
	}
}

func TestTranslateRateLimitedNeverTriesOthers(t *testing.T) {
	t.Parallel()

	p := newScriptedProvider(map[string]reply{
		"a": failing(provider.StatusError(429, "slow down")),
		"b": content(validPair),
		"c": content(validPair),
	})
	o, _ := newOrchestrator(t, p, "a", "b", "c")

	_, err := o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"A", "B"}, Target: "de"})
	require.ErrorIs(t, err, translate.ErrTooManyRequests)
	assert.NotErrorIs(t, err, translate.ErrServiceUnavailable)
	assert.Equal(t, []string{"a"}, p.models())
}

func TestTranslateAllModelsFailed(t *testing.T) {
	t.Parallel()

	p := newScriptedProvider(map[string]reply{
		"a": content(`{"translatedText":["A","B"]}`),
		"b": content("```json\n{\"detectedLanguage\":{\"language\":\"en\",\"confidence\":9},\"translatedText\":[\"A\"]}\n```"),
		"c": {resp: &provider.ChatResponse{Refusal: "no"}},
	})
	o, buf := newOrchestrator(t, p, "a", "b", "c")

	_, err := o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"A", "B"}, Target: "de"})
	require.ErrorIs(t, err, translate.ErrServiceUnavailable)
	require.ErrorIs(t, err, translate.ErrAllModelsFailed)
	assert.NotErrorIs(t, err, translate.ErrTooManyRequests)

	assert.Equal(t, []string{"a", "b", "c"}, p.models())
	assert.Contains(t, buf.String(), "level=WARN msg=\"all models failed\"")
}

func TestTranslateCancelledContext(t *testing.T) {
	t.Parallel()

	p := newScriptedProvider(map[string]reply{"a": content(validPair)})
	o, _ := newOrchestrator(t, p, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Translate(ctx, models.TranslationRequest{Texts: []string{"A", "B"}, Target: "de"})
	require.ErrorIs(t, err, translate.ErrServiceUnavailable)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.models())
}

func TestTranslateForeignAttemptError(t *testing.T) {
	t.Parallel()

	logger, _ := newLogger()
	o, err := translate.New(
		[]models.ModelCandidate{candidate("a", models.JSONSchema)},
		attemptFunc(func(context.Context, models.TranslationRequest, models.ModelCandidate) (models.TranslationResult, error) {
			return models.TranslationResult{}, errors.New("unexpected")
		}),
		logger,
	)
	require.NoError(t, err)

	_, err = o.Translate(context.Background(), models.TranslationRequest{Texts: []string{"A"}, Target: "de"})
	require.ErrorIs(t, err, translate.ErrServiceUnavailable)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := translate.New(nil, attemptFunc(nil), nil)
	require.Error(t, err)

	_, err = translate.New([]models.ModelCandidate{candidate("a", models.FreeText)}, nil, nil)
	require.Error(t, err)
}

func TestCandidatesIsACopy(t *testing.T) {
	t.Parallel()

	in := []models.ModelCandidate{candidate("a", models.FreeText), candidate("b", models.JSONSchema)}
	o, err := translate.New(in, attemptFunc(nil), nil)
	require.NoError(t, err)

	in[0].Name = "mutated"
	got := o.Candidates()
	got[1].Name = "mutated"

	assert.Equal(t, []string{"a", "b"}, []string{o.Candidates()[0].Name, o.Candidates()[1].Name})
}

type attemptFunc func(context.Context, models.TranslationRequest, models.ModelCandidate) (models.TranslationResult, error)

func (f attemptFunc) Invoke(ctx context.Context, req models.TranslationRequest, c models.ModelCandidate) (models.TranslationResult, error) {
	return f(ctx, req, c)
}
