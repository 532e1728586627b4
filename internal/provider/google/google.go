package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

var defaultModels = []string{"gemini-pro", "gemini-1.5-pro", "gemini-1.5-flash"}

// Provider implements Google's generateContent API. The credential travels
// as a key query parameter, not a header.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	catalog []models.ModelInfo
}

// New constructs the Google adapter.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("google provider: base url must not be empty")
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
			OwnedBy: string(provider.Google),
		})
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  client,
		catalog: catalog,
	}, nil
}

func (p *Provider) Name() provider.Provider {
	return provider.Google
}

func (p *Provider) Models() []models.ModelInfo {
	result := make([]models.ModelInfo, len(p.catalog))
	copy(result, p.catalog)
	return result
}

// Chat translates the canonical request into a generateContent call.
func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("Google API key %w", provider.ErrNotConfigured)
	}

	payload := buildGeneratePayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(req.Model), url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google chat request failed: %w: %v", provider.ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var upstream generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("decode google response: %w: %v", provider.ErrTranslation, err)
	}

	return upstream.normalize(req.Model)
}

type generatePayload struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// buildGeneratePayload remaps assistant to model; every other role travels
// as user. Each message becomes a parts/text envelope.
func buildGeneratePayload(req models.ChatRequest) generatePayload {
	contents := make([]content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: msg.Content}},
		})
	}

	payload := generatePayload{Contents: contents}
	if req.Temperature != nil || req.MaxTokens != nil {
		payload.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return payload
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// normalize descends candidates[0].content.parts[0].text.
func (r generateResponse) normalize(model string) (*models.ChatResponse, error) {
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("%w: google response missing candidates", provider.ErrTranslation)
	}
	first := r.Candidates[0]
	if len(first.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: google candidate missing content parts", provider.ErrTranslation)
	}

	finish := strings.ToLower(first.FinishReason)
	if finish == "" {
		finish = "stop"
	}

	return models.NewChatResponse(model, "assistant", first.Content.Parts[0].Text, finish), nil
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, provider.ErrTransport)
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("google error (%s): %s: %w", apiErr.Error.Status, apiErr.Error.Message, provider.ErrTransport)
	}

	return fmt.Errorf("google upstream error status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), provider.ErrTransport)
}
