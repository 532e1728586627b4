package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"zeke-gateway/internal/models"
)

// chatCompletionRequest models the OpenAI chat/completions payload accepted
// on the wire. The optional provider field overrides model-based
// resolution.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature"`
	MaxTokens   *int          `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Provider    string        `json:"provider"`
}

func (r chatCompletionRequest) validate() error {
	if len(r.Messages) == 0 {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "messages field is required",
			Code:    "invalid_request_error",
		}
	}
	return nil
}

// toCanonical converts the wire request into the canonical schema.
func (r chatCompletionRequest) toCanonical() models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}

	return models.ChatRequest{
		Model:       strings.TrimSpace(r.Model),
		Messages:    msgs,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Stream:      r.Stream,
		Provider:    strings.TrimSpace(r.Provider),
	}
}

// wireMessage accepts both plain-string content and the array-of-text-parts
// content form.
type wireMessage struct {
	Role    string
	Content string
}

func (m *wireMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	content, err := flattenContent(raw.Content)
	if err != nil {
		return err
	}

	m.Role = raw.Role
	m.Content = content
	return nil
}

func flattenContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", errors.New("message content must be a string or an array of text parts")
	}

	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// completionRequest models the legacy text-completion payload.
type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Provider    string   `json:"provider"`
}

func (r completionRequest) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "prompt field is required",
			Code:    "invalid_request_error",
		}
	}
	return nil
}

func (r completionRequest) toCanonical() models.ChatRequest {
	return models.ChatRequest{
		Model:       strings.TrimSpace(r.Model),
		Messages:    []models.Message{{Role: "user", Content: r.Prompt}},
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Provider:    strings.TrimSpace(r.Provider),
	}
}

// decodeRequestBody parses exactly one JSON object from the request body,
// capped at maxBodyBytes.
func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Code:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Code:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Code:    "invalid_request_error",
		}
	}
	return nil
}
