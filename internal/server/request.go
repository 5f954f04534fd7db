package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"chatlibre/internal/models"
)

// translateRequest is the LibreTranslate /translate body. Fields such as
// source, format, api_key and alternatives are accepted and ignored.
type translateRequest struct {
	Q      json.RawMessage `json:"q"`
	Target string          `json:"target"`
}

// normalize validates the body and turns q into a batch.
func (r translateRequest) normalize() (models.TranslationRequest, error) {
	texts, single, err := parseQ(r.Q)
	if err != nil {
		return models.TranslationRequest{}, err
	}

	target := strings.TrimSpace(r.Target)
	if target == "" {
		return models.TranslationRequest{}, badRequest("target is required")
	}

	return models.TranslationRequest{Texts: texts, Target: target, Single: single}, nil
}

func parseQ(raw json.RawMessage) ([]string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, badRequest("q is required")
	}

	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false, badRequest("q must be a string or an array of strings")
		}
		if text == "" {
			return nil, false, badRequest("q must not be empty")
		}
		return []string{text}, true, nil
	case '[':
		var items []*string
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false, badRequest("q must be a string or an array of strings")
		}
		if len(items) == 0 {
			return nil, false, badRequest("q must not be empty")
		}
		texts := make([]string, len(items))
		for i, item := range items {
			if item == nil {
				return nil, false, badRequest(fmt.Sprintf("q[%d] must be a string", i))
			}
			texts[i] = *item
		}
		return texts, false, nil
	default:
		return nil, false, badRequest("q must be a string or an array of strings")
	}
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return requestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		case errors.Is(err, io.EOF):
			return badRequest("request body is required")
		default:
			return badRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}
