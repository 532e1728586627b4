// Package copilot adapts GitHub Copilot's chat endpoint, which speaks the
// OpenAI wire format with additional editor identification headers.
package copilot

import (
	"net/http"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/provider"
	"zeke-gateway/internal/provider/openai"
)

var defaultModels = []string{"copilot-chat", "github-copilot"}

var editorHeaders = map[string]string{
	"Editor-Version":         "zeke/0.1",
	"Copilot-Integration-Id": "zeke-gateway",
}

// New constructs the Copilot adapter by delegating to the OpenAI wire
// implementation under the copilot variant.
func New(cfg config.ProviderConfig, client *http.Client) (*openai.Provider, error) {
	return openai.NewCompatible(provider.Copilot, "Copilot", cfg, client, editorHeaders, defaultModels)
}
