package config

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ResolveSecrets fetches the gateway API key from AWS Secrets Manager
// when an ARN is configured. Deployments that set the key directly in the
// environment skip this entirely.
func (c *Config) ResolveSecrets(ctx context.Context) error {
	if c.Gateway.APIKeySecretARN == "" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &c.Gateway.APIKeySecretARN,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch gateway API key secret: %w", err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return fmt.Errorf("gateway API key secret %s is empty", c.Gateway.APIKeySecretARN)
	}

	c.Gateway.APIKey = *out.SecretString
	return nil
}
