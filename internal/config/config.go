package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default endpoints used when the configuration leaves a base URL empty.
const (
	defaultLocalURL   = "http://localhost:11434"
	defaultOpenAIURL  = "https://api.openai.com/v1"
	defaultClaudeURL  = "https://api.anthropic.com"
	defaultGoogleURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultCopilotURL = "https://api.githubcopilot.com"

	defaultPort        = 8080
	defaultServiceName = "zeke-gateway"
	defaultModel       = "llama2"
)

// Config is the immutable application configuration. It is constructed once
// at startup and injected into the factory and server; nothing mutates it
// afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines listener and health-advertisement settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	ServiceName string `yaml:"service_name"`
	// AdvertiseGPU is the static gpu_enabled flag reported by /health. It is
	// an advertised capability, never a live hardware probe.
	AdvertiseGPU *bool `yaml:"advertise_gpu"`
	// DefaultModel is used by task endpoints when a request names no model.
	DefaultModel string `yaml:"default_model"`
}

// GPUEnabled reports the advertised GPU flag, defaulting to true.
func (s ServerConfig) GPUEnabled() bool {
	if s.AdvertiseGPU == nil {
		return true
	}
	return *s.AdvertiseGPU
}

// ProvidersConfig catalogues the five upstream providers.
type ProvidersConfig struct {
	Local   ProviderConfig `yaml:"local"`
	OpenAI  ProviderConfig `yaml:"openai"`
	Claude  ProviderConfig `yaml:"claude"`
	Google  ProviderConfig `yaml:"google"`
	Copilot ProviderConfig `yaml:"copilot"`
}

// ProviderConfig captures endpoint and credential info for one provider.
// APIKey supports ${VAR} expansion from the environment. An empty APIKey is
// a valid state: providers that require one report a configuration error at
// request time rather than failing startup.
type ProviderConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Models  []string `yaml:"models"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads YAML configuration from disk, fills defaults and validates.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if strings.TrimSpace(c.Server.ServiceName) == "" {
		c.Server.ServiceName = defaultServiceName
	}
	if strings.TrimSpace(c.Server.DefaultModel) == "" {
		c.Server.DefaultModel = defaultModel
	}

	fillProvider(&c.Providers.Local, defaultLocalURL)
	fillProvider(&c.Providers.OpenAI, defaultOpenAIURL)
	fillProvider(&c.Providers.Claude, defaultClaudeURL)
	fillProvider(&c.Providers.Google, defaultGoogleURL)
	fillProvider(&c.Providers.Copilot, defaultCopilotURL)
}

func fillProvider(p *ProviderConfig, baseURL string) {
	if strings.TrimSpace(p.BaseURL) == "" {
		p.BaseURL = baseURL
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	providers := map[string]ProviderConfig{
		"local":   c.Providers.Local,
		"openai":  c.Providers.OpenAI,
		"claude":  c.Providers.Claude,
		"google":  c.Providers.Google,
		"copilot": c.Providers.Copilot,
	}

	for name, provider := range providers {
		if strings.TrimSpace(provider.BaseURL) == "" {
			return fmt.Errorf("provider %s: base_url must not be empty", name)
		}
		for _, model := range provider.Models {
			if strings.TrimSpace(model) == "" {
				return fmt.Errorf("provider %s: model id must not be empty", name)
			}
		}
	}

	return nil
}
