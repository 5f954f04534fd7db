package translate

import (
	"strings"

	"chatlibre/internal/provider"
)

const targetPlaceholder = "{{target}}"

// DefaultPrompt is the built-in system instruction. {{target}} is replaced by
// the display name of the target language.
const DefaultPrompt = `You are a translation service. The user sends a JSON array of strings. ` +
	`Each string is HTML that may contain text in a natural language. ` +
	`Detect which language the text is written in and translate every string to {{target}}.

Rules:
- Keep HTML tags and attributes untouched; translate only the text between them.
- Do not translate emoji shortcodes surrounded by colons (e.g. :smile:); keep them exactly as they are.
- Do not translate emoticons or kaomoji (e.g. :-) or (╯°□°)╯).
- Return exactly one translated string per input string, in the same order.
- Reply with a single valid JSON object and nothing else.

Example output:
{
    "detectedLanguage": {
        "language": "zh",
        "confidence": 87
    },
    "translatedText": [
        "<p>Hello!</p>",
        "<p>See you :wave:</p>"
    ]
}
`

// LanguageNamer resolves a language code to a display name.
type LanguageNamer interface {
	Lookup(code string) string
}

// PromptBuilder renders system instructions for a target language.
type PromptBuilder struct {
	names    LanguageNamer
	template string
}

// NewPromptBuilder uses template when non-empty and DefaultPrompt otherwise.
func NewPromptBuilder(names LanguageNamer, template string) *PromptBuilder {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	return &PromptBuilder{names: names, template: template}
}

// Build renders the instruction for target.
func (b *PromptBuilder) Build(target string) string {
	name := target
	if b.names != nil {
		name = b.names.Lookup(target)
	}
	return strings.ReplaceAll(b.template, targetPlaceholder, name)
}

// ResultSchema is the JSON schema of the translation result, shared by every
// provider that supports schema-constrained output.
func ResultSchema() *provider.Schema {
	return &provider.Schema{
		Name:        "translation_result",
		Description: "Detected source language and the translated strings in input order.",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"detectedLanguage": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"language": map[string]any{
							"type":        "string",
							"description": "ISO 639-1 code of the source language",
						},
						"confidence": map[string]any{
							"type":        "integer",
							"description": "Detection confidence from 1 to 100",
						},
					},
					"required":             []string{"language", "confidence"},
					"additionalProperties": false,
				},
				"translatedText": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required":             []string{"detectedLanguage", "translatedText"},
			"additionalProperties": false,
		},
	}
}
