// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package llm provides the language model clients the platform uses for
// text-level work around the replay engine, primarily extracting parameter
// bindings from free-form task prompts.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is a single LLM backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Query(ctx context.Context, prompt string, options QueryOptions) (*Response, error)
	IsHealthy() bool
}

// QueryOptions tunes a single completion.
type QueryOptions struct {
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
}

// Response is a completed query.
type Response struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokens_used"`
	ResponseTime time.Duration `json:"response_time"`
}

// Config selects and configures a provider.
type Config struct {
	// Provider is one of: openai, deepseek, groq, mistral, together,
	// anthropic, bedrock.
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`

	// APIKey authenticates against the provider API. For bedrock it is
	// ignored (IAM signs the requests).
	APIKey string `json:"api_key,omitempty"`

	// APIKeySecretARN, when set, resolves the API key from AWS Secrets
	// Manager instead of APIKey.
	APIKeySecretARN string `json:"api_key_secret_arn,omitempty"`

	// Endpoint overrides the provider's default API base URL.
	Endpoint string `json:"endpoint,omitempty"`

	// Region is the AWS region for bedrock and secret resolution.
	Region string `json:"region,omitempty"`
}

// NewProvider builds the configured provider, resolving the API key from
// Secrets Manager when an ARN is configured.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	apiKey := cfg.APIKey
	if cfg.APIKeySecretARN != "" {
		resolved, err := resolveSecretAPIKey(ctx, cfg.Region, cfg.APIKeySecretARN)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve API key for %s: %w", cfg.Provider, err)
		}
		apiKey = resolved
	}

	switch cfg.Provider {
	case "openai", "deepseek", "groq", "mistral", "together", "":
		return NewOpenAIProvider(cfg.Provider, apiKey, cfg.Endpoint, cfg.Model), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, cfg.Model), nil
	case "bedrock":
		return NewBedrockProvider(ctx, cfg.Region, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
