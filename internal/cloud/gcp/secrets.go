// Package gcp holds the optional Google Cloud integrations: reading the
// identity API key from Secret Manager and shipping logs to Cloud Logging.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretFetcher reads one secret value.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// SecretManagerClient wraps the Secret Manager client.
type SecretManagerClient struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerClient creates a Secret Manager client. projectID is used to
// expand bare secret names; when empty it is taken from the environment.
func NewSecretManagerClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerClient, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	if projectID == "" {
		projectID = projectFromEnv()
	}
	return &SecretManagerClient{client: client, projectID: projectID}, nil
}

func projectFromEnv() string {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// FetchSecret retrieves a secret. secretPath may be a full version path, a
// secret path without version (latest is used) or a bare secret name.
func (c *SecretManagerClient) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	name := c.normalizeSecretPath(secretPath)
	if strings.HasPrefix(name, "projects//") {
		return "", fmt.Errorf("secret %q: no project configured for a bare secret name", secretPath)
	}

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

func (c *SecretManagerClient) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, path.Base(secretPath))
}

// Close closes the underlying client.
func (c *SecretManagerClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ResolveAPIKey returns direct when set, otherwise the trimmed value of the
// secret at secretPath.
func ResolveAPIKey(ctx context.Context, fetcher SecretFetcher, direct, secretPath string) (string, error) {
	if direct != "" {
		return direct, nil
	}
	if secretPath == "" {
		return "", errors.New("no identity API key configured (set API_KEY or identity.api_key_secret)")
	}
	if fetcher == nil {
		return "", errors.New("identity API key secret configured but no secret fetcher available")
	}

	key, err := fetcher.FetchSecret(ctx, secretPath)
	if err != nil {
		return "", fmt.Errorf("fetching identity API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("identity API key secret %q is empty", secretPath)
	}
	return key, nil
}
