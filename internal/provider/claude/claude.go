package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/models"
	"zeke-gateway/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "zeke-gateway/0.1"
	apiVersion      = "2023-06-01"

	// defaultMaxTokens fills max_tokens when the request leaves it unset;
	// the messages API requires the field.
	defaultMaxTokens = 4096
)

var defaultModels = []string{"claude-3-opus", "claude-3-sonnet", "claude-3-haiku"}

// Provider implements Anthropic's messages API.
type Provider struct {
	apiKey   string
	client   *http.Client
	messages string
	catalog  []models.ModelInfo
}

// New constructs the Claude adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("claude provider: base url must not be empty")
	}

	ids := cfg.Models
	if len(ids) == 0 {
		ids = defaultModels
	}

	created := time.Now().Unix()
	catalog := make([]models.ModelInfo, 0, len(ids))
	for _, id := range ids {
		catalog = append(catalog, models.ModelInfo{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: string(provider.Claude),
		})
	}

	return &Provider{
		apiKey:   cfg.APIKey,
		client:   client,
		messages: baseURL + "/v1/messages",
		catalog:  catalog,
	}, nil
}

func (p *Provider) Name() provider.Provider {
	return provider.Claude
}

func (p *Provider) Models() []models.ModelInfo {
	result := make([]models.ModelInfo, len(p.catalog))
	copy(result, p.catalog)
	return result
}

// Chat translates the canonical request into a messages-API call.
func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("Claude API key %w", provider.ErrNotConfigured)
	}

	payload := buildMessagePayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.messages, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude chat request failed: %w: %v", provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var upstream messageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("decode claude response: %w: %v", provider.ErrTranslation, err)
	}

	return upstream.normalize(req.Model)
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// buildMessagePayload discards system-role messages outright.
// TODO: remap system messages to the messages API's top-level system field
// instead of dropping them.
func buildMessagePayload(req models.ChatRequest) messagePayload {
	messages := make([]message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		messages = append(messages, message{
			Role: msg.Role,
			Content: []contentBlock{
				{Type: "text", Text: msg.Content},
			},
		})
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	return messagePayload{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

type messageResponse struct {
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// normalize reads only the first content block of the reply.
func (r messageResponse) normalize(model string) (*models.ChatResponse, error) {
	if len(r.Content) == 0 {
		return nil, fmt.Errorf("%w: claude response missing content blocks", provider.ErrTranslation)
	}

	finish := r.StopReason
	if finish == "end_turn" || finish == "" {
		finish = "stop"
	}

	return models.NewChatResponse(model, r.Role, r.Content[0].Text, finish), nil
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, provider.ErrTransport)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("claude error (%s): %s: %w", apiErr.Error.Type, apiErr.Error.Message, provider.ErrTransport)
	}

	return fmt.Errorf("claude upstream error status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), provider.ErrTransport)
}
