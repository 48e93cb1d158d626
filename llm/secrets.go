// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveSecretAPIKey fetches an API key from AWS Secrets Manager. The
// secret is either a bare string or a JSON object with an "api_key" field.
func resolveSecretAPIKey(ctx context.Context, region, secretARN string) (string, error) {
	cfgOpts := []func(*config.LoadOptions) error{}
	if region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret has no string value")
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err == nil {
		if key, ok := fields["api_key"]; ok && key != "" {
			return key, nil
		}
		return "", fmt.Errorf("secret JSON has no api_key field")
	}
	return *result.SecretString, nil
}
