package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputMode controls how strictly the upstream model is asked to shape its reply.
type OutputMode int

const (
	// FreeText places no constraint on the reply; used for the oldest models.
	FreeText OutputMode = iota + 1
	// JSONObject requires a syntactically valid JSON object without a schema.
	JSONObject
	// JSONSchema constrains the reply upstream to the translation result shape.
	JSONSchema
)

const (
	outputModeFreeText   = "free_text"
	outputModeJSONObject = "json_object"
	outputModeJSONSchema = "json_schema"
)

// ParseOutputMode converts a configuration value into an OutputMode.
func ParseOutputMode(value string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case outputModeFreeText:
		return FreeText, nil
	case outputModeJSONObject:
		return JSONObject, nil
	case outputModeJSONSchema:
		return JSONSchema, nil
	default:
		return 0, fmt.Errorf("output mode %q must be one of %q, %q or %q",
			value, outputModeFreeText, outputModeJSONObject, outputModeJSONSchema)
	}
}

func (m OutputMode) String() string {
	switch m {
	case FreeText:
		return outputModeFreeText
	case JSONObject:
		return outputModeJSONObject
	case JSONSchema:
		return outputModeJSONSchema
	default:
		return fmt.Sprintf("output_mode(%d)", int(m))
	}
}

// TranslationRequest is a validated batch of fragments bound for one target language.
type TranslationRequest struct {
	Texts  []string
	Target string
	// Single marks a request whose q was a bare string rather than an array.
	Single bool
}

// DetectedLanguage is the source language reported by the model.
type DetectedLanguage struct {
	Language   string `json:"language"`
	Confidence int    `json:"confidence"`
}

// TranslationResult is the normalized outcome of one successful model call.
type TranslationResult struct {
	DetectedLanguage DetectedLanguage
	TranslatedText   []string
	Single           bool
	// Model is the upstream model that produced the result; never serialized.
	Model string
}

// MarshalJSON mirrors the shape of the inbound q: a bare string for single
// requests, an array otherwise.
func (r TranslationResult) MarshalJSON() ([]byte, error) {
	var text any = r.TranslatedText
	if r.Single && len(r.TranslatedText) == 1 {
		text = r.TranslatedText[0]
	}
	return json.Marshal(struct {
		DetectedLanguage DetectedLanguage `json:"detectedLanguage"`
		TranslatedText   any              `json:"translatedText"`
	}{
		DetectedLanguage: r.DetectedLanguage,
		TranslatedText:   text,
	})
}

// ModelCandidate is one entry of the ordered fallback list.
type ModelCandidate struct {
	Name       string
	Provider   string
	OutputMode OutputMode
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Language is a /languages listing entry.
type Language struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}
