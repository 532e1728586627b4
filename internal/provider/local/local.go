package local

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

// FallbackReply is returned when the local backend is unreachable. Only
// connectivity failures are masked this way; a reply that arrives but
// cannot be parsed still surfaces as a translation error.
const FallbackReply = "The local model backend is not reachable right now. " +
	"Start your local inference server (for example `ollama serve`) and try again."

var defaultModels = []string{"llama2", "llama3", "codellama", "mistral"}

// Provider implements host-local inference via an Ollama-style chat API.
type Provider struct {
	client  *http.Client
	chatURL string
	catalog []models.ModelInfo
}

// New constructs the local adapter. No credential is involved.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("local provider: base url must not be empty")
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
			OwnedBy: string(provider.Local),
		})
	}

	return &Provider{
		client:  client,
		chatURL: baseURL + "/api/chat",
		catalog: catalog,
	}, nil
}

func (p *Provider) Name() provider.Provider {
	return provider.Local
}

func (p *Provider) Models() []models.ModelInfo {
	result := make([]models.ModelInfo, len(p.catalog))
	copy(result, p.catalog)
	return result
}

// Chat calls the local backend. Streaming is forced off; temperature nests
// under the options object. When the backend cannot be reached at all, the
// canned fallback reply substitutes for the error.
func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	payload := chatPayload{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		payload.Options = &chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		// Connection refused, DNS failure, timeout: degrade gracefully.
		return models.NewChatResponse(req.Model, "assistant", FallbackReply, "stop"), nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseAPIError(httpResp)
	}

	var upstream chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&upstream); err != nil {
		return nil, fmt.Errorf("decode local response: %w: %v", provider.ErrTranslation, err)
	}

	return upstream.normalize(req.Model)
}

type chatPayload struct {
	Model    string           `json:"model"`
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  *chatOptions     `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message    models.Message `json:"message"`
	Done       bool           `json:"done"`
	DoneReason string         `json:"done_reason"`
}

func (r chatResponse) normalize(model string) (*models.ChatResponse, error) {
	if r.Message.Role == "" && r.Message.Content == "" {
		return nil, fmt.Errorf("%w: local response missing message", provider.ErrTranslation)
	}

	return models.NewChatResponse(model, r.Message.Role, r.Message.Content, r.DoneReason), nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, provider.ErrTransport)
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("local backend error: %s: %w", apiErr.Error, provider.ErrTransport)
	}

	return fmt.Errorf("local upstream error status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), provider.ErrTransport)
}
