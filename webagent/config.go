// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. Values come from environment
// variables; an optional YAML file (WEBAGENT_CONFIG_FILE) overrides the
// provider, browser and artifact settings for deployments that prefer a
// config file over a long env list.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	APISecret   string `yaml:"api_secret"`

	Browser struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Provider string `yaml:"provider"` // local, browserbase, steel
		Headless bool   `yaml:"headless"`
	} `yaml:"browser"`

	Engine struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"engine"`

	LLM struct {
		Provider        string `yaml:"provider"`
		Model           string `yaml:"model"`
		APIKey          string `yaml:"api_key"`
		APIKeySecretARN string `yaml:"api_key_secret_arn"`
		Region          string `yaml:"region"`
	} `yaml:"llm"`

	Artifacts struct {
		Bucket         string `yaml:"bucket"`
		Region         string `yaml:"region"`
		Endpoint       string `yaml:"endpoint"`
		ForcePathStyle bool   `yaml:"force_path_style"`
	} `yaml:"artifacts"`
}

// LoadConfig reads configuration from the environment, then applies the
// optional YAML override file.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.Port = getEnv("PORT", "8080")
	cfg.DatabaseURL = databaseURLFromEnv()
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.APISecret = os.Getenv("WEBAGENT_API_SECRET")

	cfg.Browser.Endpoint = getEnv("BROWSER_DRIVER_ENDPOINT", "http://localhost:9000")
	cfg.Browser.APIKey = os.Getenv("BROWSER_DRIVER_API_KEY")
	cfg.Browser.Provider = getEnv("BROWSER_PROVIDER", "local")
	cfg.Browser.Headless = os.Getenv("BROWSER_HEADLESS") != "false"

	cfg.Engine.Endpoint = getEnv("ENGINE_ENDPOINT", "http://localhost:9001")
	cfg.Engine.APIKey = os.Getenv("ENGINE_API_KEY")

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", ProviderOpenAI)
	cfg.LLM.Model = os.Getenv("LLM_MODEL")
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	cfg.LLM.APIKeySecretARN = os.Getenv("LLM_API_KEY_SECRET_ARN")
	cfg.LLM.Region = os.Getenv("BEDROCK_REGION")

	cfg.Artifacts.Bucket = os.Getenv("SCREENSHOT_BUCKET")
	cfg.Artifacts.Region = os.Getenv("SCREENSHOT_BUCKET_REGION")
	cfg.Artifacts.Endpoint = os.Getenv("SCREENSHOT_BUCKET_ENDPOINT")
	cfg.Artifacts.ForcePathStyle = os.Getenv("SCREENSHOT_BUCKET_PATH_STYLE") == "true"

	if path := os.Getenv("WEBAGENT_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyFile overlays the YAML file on top of the env-derived config. Only
// fields present in the file override.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// databaseURLFromEnv builds a connection string from DATABASE_* parts, with
// DATABASE_URL as the fallback. Password is URL-encoded for the URI form.
func databaseURLFromEnv() string {
	host := os.Getenv("DATABASE_HOST")
	password := os.Getenv("DATABASE_PASSWORD")
	if host == "" || password == "" {
		return os.Getenv("DATABASE_URL")
	}

	port := getEnv("DATABASE_PORT", "5432")
	name := getEnv("DATABASE_NAME", "webagent")
	user := getEnv("DATABASE_USER", "webagent_app")
	sslMode := getEnv("DATABASE_SSLMODE", "require")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, port, name, sslMode)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
