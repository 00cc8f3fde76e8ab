package llmfactory

import (
	"slices"
	"strings"

	"github.com/effective-security/x/configloader"
)

// Config of the model providers
type Config struct {
	// Providers specifies the list of providers to use
	Providers []*ProviderConfig `json:"providers" yaml:"providers" toml:"providers" validate:"dive"`
	// DefaultProvider specifies the name of the default provider,
	// the first provider is used when empty
	DefaultProvider string `json:"default_provider,omitempty" yaml:"default_provider,omitempty" toml:"default_provider"`
}

// ProviderConfig for a model provider
type ProviderConfig struct {
	Name            string   `json:"name" yaml:"name" toml:"name" validate:"required"`
	Token           string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token"`
	DefaultModel    string   `json:"default_model,omitempty" yaml:"default_model,omitempty" toml:"default_model"`
	AvailableModels []string `json:"available_models,omitempty" yaml:"available_models,omitempty" toml:"available_models"`
	// APIType specifies the type of API to use:
	// GOOGLEAI|ANTHROPIC|OPENAI|BEDROCK, GOOGLEAI if empty
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty" toml:"api_type" validate:"omitempty,oneof=GOOGLEAI googleai GEMINI gemini ANTHROPIC anthropic OPENAI openai OPEN_AI open_ai BEDROCK bedrock"`
	// BaseURL overrides the endpoint for ANTHROPIC and OPENAI compatible APIs
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url"`
	// OrgID specifies which organization's quota and billing should be used for OPENAI.
	OrgID string `json:"org_id,omitempty" yaml:"org_id,omitempty" toml:"org_id"`
	// Region specifies the AWS region for BEDROCK,
	// for BEDROCK the Token may carry static credentials as ACCESS_KEY_ID:SECRET[:SESSION_TOKEN]
	Region string `json:"region,omitempty" yaml:"region,omitempty" toml:"region"`
}

// ProviderType returns the normalized API type
func (c *ProviderConfig) ProviderType() string {
	switch strings.ToUpper(c.APIType) {
	case "", "GOOGLEAI", "GEMINI":
		return "GOOGLEAI"
	case "OPENAI", "OPEN_AI":
		return "OPENAI"
	default:
		return strings.ToUpper(c.APIType)
	}
}

// FindModel returns the first of models that the provider serves,
// or the provider's default model
func (c *ProviderConfig) FindModel(models ...string) string {
	for _, model := range models {
		if slices.Contains(c.AvailableModels, model) {
			return model
		}
	}
	return c.DefaultModel
}

// Redacted returns a copy of the config without credentials
func (c *Config) Redacted() *Config {
	res := &Config{DefaultProvider: c.DefaultProvider}
	for _, p := range c.Providers {
		cp := *p
		if cp.Token != "" {
			cp.Token = "***"
		}
		cp.AvailableModels = slices.Clone(p.AvailableModels)
		res.Providers = append(res.Providers, &cp)
	}
	return res
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
