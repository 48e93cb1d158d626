// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// openAICompatibleEndpoints maps vendor names to their OpenAI-compatible
// chat completion base URLs.
var openAICompatibleEndpoints = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"together": "https://api.together.xyz/v1",
}

// openAIDefaultModels picks a sensible default model per vendor.
var openAIDefaultModels = map[string]string{
	"openai":   "gpt-4o",
	"deepseek": "deepseek-chat",
	"groq":     "llama-3.3-70b-versatile",
	"mistral":  "mistral-large-latest",
	"together": "meta-llama/Llama-3.3-70B-Instruct-Turbo",
}

// OpenAIProvider speaks the OpenAI chat completions protocol. It covers
// OpenAI itself and the compatible vendors (DeepSeek, Groq, Mistral,
// Together).
type OpenAIProvider struct {
	vendor   string
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	healthy  bool
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for an OpenAI-compatible vendor.
// Empty vendor means OpenAI.
func NewOpenAIProvider(vendor, apiKey, endpoint, model string) *OpenAIProvider {
	if vendor == "" {
		vendor = "openai"
	}
	if endpoint == "" {
		endpoint = openAICompatibleEndpoints[vendor]
	}
	if model == "" {
		model = openAIDefaultModels[vendor]
	}
	return &OpenAIProvider{
		vendor:   vendor,
		apiKey:   apiKey,
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
		healthy:  true,
	}
}

func (p *OpenAIProvider) Name() string { return p.vendor }

func (p *OpenAIProvider) IsHealthy() bool { return p.healthy }

func (p *OpenAIProvider) Query(ctx context.Context, prompt string, options QueryOptions) (*Response, error) {
	start := time.Now()

	model := options.Model
	if model == "" {
		model = p.model
	}
	maxTokens := options.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	messages := []map[string]string{}
	if options.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": options.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body, err := json.Marshal(map[string]any{
		"model":       model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": options.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.healthy = false
		return nil, fmt.Errorf("%s request failed: %w", p.vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		p.healthy = resp.StatusCode < 500
		return nil, fmt.Errorf("%s returned %d: %s", p.vendor, resp.StatusCode, detail)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", p.vendor, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.vendor)
	}

	p.healthy = true
	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        model,
		TokensUsed:   parsed.Usage.TotalTokens,
		ResponseTime: time.Since(start),
	}, nil
}
