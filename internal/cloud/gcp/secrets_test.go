package gcp

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockSecretFetcher implements SecretFetcher for testing
type mockSecretFetcher struct {
	fetchFunc func(ctx context.Context, secretPath string) (string, error)
	closeFunc func() error
	calls     int
}

func (m *mockSecretFetcher) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	m.calls++
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, secretPath)
	}
	return "", errors.New("mock fetch not implemented")
}

func (m *mockSecretFetcher) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func TestNormalizeSecretPath(t *testing.T) {
	tests := []struct {
		name       string
		secretPath string
		want       string
	}{
		{
			name:       "full path with version",
			secretPath: "projects/openacc/secrets/identity-api-key/versions/3",
			want:       "projects/openacc/secrets/identity-api-key/versions/3",
		},
		{
			name:       "full path without version",
			secretPath: "projects/openacc/secrets/identity-api-key",
			want:       "projects/openacc/secrets/identity-api-key/versions/latest",
		},
		{
			name:       "secret name only",
			secretPath: "identity-api-key",
			want:       "projects/openacc/secrets/identity-api-key/versions/latest",
		},
		{
			name:       "secret name with path prefix",
			secretPath: "keys/identity-api-key",
			want:       "projects/openacc/secrets/identity-api-key/versions/latest",
		},
	}

	client := &SecretManagerClient{projectID: "openacc"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.normalizeSecretPath(tt.secretPath); got != tt.want {
				t.Errorf("normalizeSecretPath(%q) = %q, want %q", tt.secretPath, got, tt.want)
			}
		})
	}
}

func TestFetchSecret_BareNameWithoutProject(t *testing.T) {
	client := &SecretManagerClient{}
	if _, err := client.FetchSecret(context.Background(), "identity-api-key"); err == nil {
		t.Error("expected error for bare secret name without a project")
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Run("direct key wins", func(t *testing.T) {
		fetcher := &mockSecretFetcher{}
		key, err := ResolveAPIKey(context.Background(), fetcher, "AIzaDirect", "identity-api-key")
		if err != nil || key != "AIzaDirect" {
			t.Errorf("ResolveAPIKey() = %q, %v", key, err)
		}
		if fetcher.calls != 0 {
			t.Error("secret fetched although a key was configured")
		}
	})

	t.Run("from secret", func(t *testing.T) {
		fetcher := &mockSecretFetcher{
			fetchFunc: func(_ context.Context, secretPath string) (string, error) {
				if secretPath != "identity-api-key" {
					t.Errorf("secretPath = %q", secretPath)
				}
				return "AIzaFromSecret\n", nil
			},
		}
		key, err := ResolveAPIKey(context.Background(), fetcher, "", "identity-api-key")
		if err != nil || key != "AIzaFromSecret" {
			t.Errorf("ResolveAPIKey() = %q, %v", key, err)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if _, err := ResolveAPIKey(context.Background(), nil, "", ""); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		fetcher := &mockSecretFetcher{
			fetchFunc: func(context.Context, string) (string, error) {
				return "", errors.New("permission denied")
			},
		}
		_, err := ResolveAPIKey(context.Background(), fetcher, "", "identity-api-key")
		if err == nil || !strings.Contains(err.Error(), "permission denied") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty secret", func(t *testing.T) {
		fetcher := &mockSecretFetcher{
			fetchFunc: func(context.Context, string) (string, error) { return "  ", nil },
		}
		if _, err := ResolveAPIKey(context.Background(), fetcher, "", "identity-api-key"); err == nil {
			t.Error("expected error for empty secret")
		}
	})
}

func TestSecretFetcherInterface(t *testing.T) {
	var _ SecretFetcher = (*SecretManagerClient)(nil)
	var _ SecretFetcher = (*mockSecretFetcher)(nil)
}

func TestSecretManagerClient_Close_Nil(t *testing.T) {
	client := &SecretManagerClient{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() with nil client unexpected error: %v", err)
	}
}
