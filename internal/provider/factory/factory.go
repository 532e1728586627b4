package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"zeke-gateway/internal/config"
	"zeke-gateway/internal/provider"
	claudeProvider "zeke-gateway/internal/provider/claude"
	copilotProvider "zeke-gateway/internal/provider/copilot"
	googleProvider "zeke-gateway/internal/provider/google"
	localProvider "zeke-gateway/internal/provider/local"
	openaiProvider "zeke-gateway/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs the five adapters from
// configuration and stores them in the registry. All adapters are always
// registered; ones missing credentials fail per-request, not at startup.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	client := newHTTPClient(defaultHTTPTimeout)

	local, err := localProvider.New(cfg.Providers.Local, client)
	if err != nil {
		return fmt.Errorf("initialise local provider: %w", err)
	}

	openAI, err := openaiProvider.New(cfg.Providers.OpenAI, client)
	if err != nil {
		return fmt.Errorf("initialise openai provider: %w", err)
	}

	claude, err := claudeProvider.New(cfg.Providers.Claude, client)
	if err != nil {
		return fmt.Errorf("initialise claude provider: %w", err)
	}

	google, err := googleProvider.New(cfg.Providers.Google, client)
	if err != nil {
		return fmt.Errorf("initialise google provider: %w", err)
	}

	copilot, err := copilotProvider.New(cfg.Providers.Copilot, client)
	if err != nil {
		return fmt.Errorf("initialise copilot provider: %w", err)
	}

	for _, adapter := range []provider.Adapter{local, openAI, claude, google, copilot} {
		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("register %s provider: %w", adapter.Name(), err)
		}
	}

	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
