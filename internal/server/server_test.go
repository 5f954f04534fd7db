package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlibre/internal/config"
	"chatlibre/internal/languages"
	"chatlibre/internal/logging"
	"chatlibre/internal/models"
	"chatlibre/internal/provider/factory"
	"chatlibre/internal/server"
	"chatlibre/internal/translate"
)

type fakeTranslator struct {
	mu        sync.Mutex
	result    models.TranslationResult
	err       error
	got       []models.TranslationRequest
	requestID string
}

func (f *fakeTranslator) Translate(ctx context.Context, req models.TranslationRequest) (models.TranslationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.got = append(f.got, req)
	f.requestID, _ = logging.RequestID(ctx)
	if f.err != nil {
		return models.TranslationResult{}, f.err
	}
	res := f.result
	res.Single = req.Single
	return res, nil
}

func (f *fakeTranslator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func jsonEncode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, tr server.Translator) *server.Server {
	t.Helper()

	srv, err := server.New(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, tr, languages.New(), quietLogger())
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *server.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeTranslator{}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "It's running!", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestLanguages(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeTranslator{}), http.MethodGet, "/languages/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []models.Language
	require.NoError(t, jsonDecode(rec.Body, &got))
	require.Len(t, got, languages.New().Len())

	var fr *models.Language
	for i := range got {
		if got[i].Code == "fr" {
			fr = &got[i]
		}
	}
	require.NotNil(t, fr)
	assert.Equal(t, "French", fr.Name)
	assert.Contains(t, fr.Targets, "de")
	assert.Len(t, fr.Targets, len(got))
}

func TestTranslateSingleUnwraps(t *testing.T) {
	t.Parallel()

	tr := &fakeTranslator{result: models.TranslationResult{
		DetectedLanguage: models.DetectedLanguage{Language: "en", Confidence: 95},
		TranslatedText:   []string{"<p>Salut</p>"},
	}}
	rec := do(t, newTestServer(t, tr), http.MethodPost, "/translate", `{"q":"<p>Hi</p>","target":"fr","source":"auto","format":"html","api_key":""}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":"<p>Salut</p>"}`, rec.Body.String())

	require.Equal(t, 1, tr.calls())
	assert.Equal(t, models.TranslationRequest{Texts: []string{"<p>Hi</p>"}, Target: "fr", Single: true}, tr.got[0])
	assert.Equal(t, rec.Header().Get("X-Request-Id"), tr.requestID)
}

func TestTranslateBatch(t *testing.T) {
	t.Parallel()

	tr := &fakeTranslator{result: models.TranslationResult{
		DetectedLanguage: models.DetectedLanguage{Language: "en", Confidence: 90},
		TranslatedText:   []string{"A-de"},
	}}
	rec := do(t, newTestServer(t, tr), http.MethodPost, "/translate", `{"q":["A"],"target":" de "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detectedLanguage":{"language":"en","confidence":90},"translatedText":["A-de"]}`, rec.Body.String())
	assert.Equal(t, models.TranslationRequest{Texts: []string{"A"}, Target: "de"}, tr.got[0])
}

func TestTranslateRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "request body is required"},
		{"invalid json", `{"q":`, "invalid JSON payload"},
		{"trailing data", `{"q":"a","target":"fr"} {}`, "single JSON object"},
		{"not an object", `["a"]`, "invalid JSON payload"},
		{"missing q", `{"target":"fr"}`, "q is required"},
		{"null q", `{"q":null,"target":"fr"}`, "q is required"},
		{"empty q", `{"q":"","target":"fr"}`, "q must not be empty"},
		{"empty array", `{"q":[],"target":"fr"}`, "q must not be empty"},
		{"numeric q", `{"q":42,"target":"fr"}`, "q must be a string or an array of strings"},
		{"object q", `{"q":{"text":"a"},"target":"fr"}`, "q must be a string or an array of strings"},
		{"mixed array", `{"q":["a",1],"target":"fr"}`, "q must be a string or an array of strings"},
		{"null element", `{"q":["a",null],"target":"fr"}`, "q[1] must be a string"},
		{"missing target", `{"q":"a"}`, "target is required"},
		{"blank target", `{"q":"a","target":"  "}`, "target is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr := &fakeTranslator{}
			rec := do(t, newTestServer(t, tr), http.MethodPost, "/translate", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, jsonDecode(rec.Body, &body))
			assert.Contains(t, body.Error, tt.wantMsg)
			assert.Zero(t, tr.calls())
		})
	}
}

func TestTranslateBodyTooLarge(t *testing.T) {
	t.Parallel()

	tr := &fakeTranslator{}
	body := `{"q":"` + strings.Repeat("a", 2<<20) + `","target":"fr"}`
	rec := do(t, newTestServer(t, tr), http.MethodPost, "/translate", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())
	assert.Zero(t, tr.calls())
}

func TestTranslateMapsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "rate limited",
			err:        fmt.Errorf("%w: %w", translate.ErrTooManyRequests, &translate.Failure{Kind: translate.RateLimited, Model: "m", Err: errors.New("secret quota detail")}),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   `{"error":"Too many requests"}`,
		},
		{
			name:       "upstream",
			err:        fmt.Errorf("%w: %w", translate.ErrServiceUnavailable, &translate.Failure{Kind: translate.UpstreamError, Model: "m", Err: errors.New("secret upstream detail")}),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"Service unavailable"}`,
		},
		{
			name:       "exhausted",
			err:        fmt.Errorf("%w: %w", translate.ErrServiceUnavailable, translate.ErrAllModelsFailed),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"error":"Service unavailable"}`,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newTestServer(t, &fakeTranslator{err: tt.err}), http.MethodPost, "/translate", `{"q":"Hi","target":"fr"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "secret")
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t, &fakeTranslator{}), http.MethodGet, "/detect", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := server.New(config.ServerConfig{}, nil, languages.New(), nil)
	require.Error(t, err)

	_, err = server.New(config.ServerConfig{}, &fakeTranslator{}, nil, nil)
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeTranslator{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "It's running!", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// End to end through the real orchestrator and an OpenAI-compatible fake.
func TestTranslateEndToEnd(t *testing.T) {
	t.Parallel()

	replies := map[string]string{
		"cheap":   `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["A-de"]}`,
		"capable": `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["A-de","B-de"]}`,
	}

	var mu sync.Mutex
	var seen []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = jsonDecode(r.Body, &req)

		mu.Lock()
		seen = append(seen, req.Model)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = jsonEncode(w, map[string]any{
			"model": req.Model,
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": replies[req.Model]},
			}},
			"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52},
		})
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Default()
	cfg.Providers.OpenAI = &config.ProviderConfig{APIKey: "sk-test", BaseURL: upstream.URL, Timeout: 5 * time.Second}
	cfg.Models = []config.ModelConfig{
		{Name: "cheap", Provider: config.ProviderOpenAI},
		{Name: "capable", Provider: config.ProviderOpenAI, OutputMode: "json_object"},
	}
	require.NoError(t, cfg.Validate())

	registry, err := factory.NewRegistry(cfg)
	require.NoError(t, err)
	candidates, err := cfg.Candidates()
	require.NoError(t, err)

	dir := languages.New()
	inv := translate.NewInvoker(registry, translate.NewPromptBuilder(dir, ""), quietLogger())
	orch, err := translate.New(candidates, inv, quietLogger())
	require.NoError(t, err)

	srv, err := server.New(cfg.Server, orch, dir, quietLogger())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/translate", `{"q":["A","B"],"target":"de"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detectedLanguage":{"language":"en","confidence":95},"translatedText":["A-de","B-de"]}`, rec.Body.String())

	mu.Lock()
	assert.Equal(t, []string{"cheap", "capable"}, seen)
	mu.Unlock()
}
