package openai

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
)

var defaultModels = []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}

// Provider implements bearer-token chat completions against any upstream
// speaking the OpenAI wire format. The canonical schema already matches
// that format, so the adapter is a near-identity pass-through.
type Provider struct {
	name        provider.Provider
	displayName string
	apiKey      string
	headers     map[string]string
	client      *http.Client
	chatURL     string
	catalog     []models.ModelInfo
}

// New constructs the OpenAI adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	return NewCompatible(provider.OpenAI, "OpenAI", cfg, client, nil, defaultModels)
}

// NewCompatible constructs an adapter for an OpenAI-wire-compatible
// upstream registered under a different provider variant.
func NewCompatible(name provider.Provider, displayName string, cfg config.ProviderConfig, client *http.Client, headers map[string]string, fallbackModels []string) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s provider: base url must not be empty", displayName)
	}

	ids := cfg.Models
	if len(ids) == 0 {
		ids = fallbackModels
	}

	return &Provider{
		name:        name,
		displayName: displayName,
		apiKey:      cfg.APIKey,
		headers:     headers,
		client:      client,
		chatURL:     baseURL + "/chat/completions",
		catalog:     catalog(ids, string(name)),
	}, nil
}

func (p *Provider) Name() provider.Provider {
	return p.name
}

func (p *Provider) Models() []models.ModelInfo {
	result := make([]models.ModelInfo, len(p.catalog))
	copy(result, p.catalog)
	return result
}

// Chat forwards the canonical request upstream. A missing credential
// short-circuits before any network I/O.
func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%s API key %w", p.displayName, provider.ErrNotConfigured)
	}

	payload := chatPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	httpReq, err := p.newRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat request failed: %w: %v", p.displayName, provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(p.displayName, httpResp)
	}

	var upstream chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("decode %s response: %w: %v", p.displayName, provider.ErrTranslation, err)
	}

	return upstream.normalize(req.Model)
}

func (p *Provider) newRequest(ctx context.Context, payload chatPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message      models.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// normalize keeps only the first upstream candidate.
func (r chatResponse) normalize(model string) (*models.ChatResponse, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("%w: response did not include choices", provider.ErrTranslation)
	}

	choice := r.Choices[0]
	return models.NewChatResponse(model, choice.Message.Role, choice.Message.Content, choice.FinishReason), nil
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(displayName string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, provider.ErrTransport)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("%s error (%s): %s: %w", displayName, apiErr.Error.Type, apiErr.Error.Message, provider.ErrTransport)
	}

	return fmt.Errorf("%s upstream error status %d: %s: %w", displayName, resp.StatusCode, strings.TrimSpace(string(body)), provider.ErrTransport)
}

func catalog(ids []string, owner string) []models.ModelInfo {
	created := time.Now().Unix()
	out := make([]models.ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ModelInfo{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: owner,
		})
	}
	return out
}
