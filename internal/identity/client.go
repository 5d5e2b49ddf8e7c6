// Package identity exchanges the device's long-lived refresh credential for
// short-lived access tokens at the identity provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is the Google secure token endpoint used by Firebase Auth.
const DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"

// AccessToken is a short-lived credential attached to authenticated requests.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now. A token with an
// unknown expiry is never considered expired.
func (t AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Refresher exchanges a refresh credential for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (AccessToken, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (AccessToken, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	return f(ctx, refreshToken)
}

// Client talks to the identity provider's token endpoint.
type Client struct {
	apiKey     string
	tokenURL   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTokenURL overrides the token endpoint (useful for testing).
func WithTokenURL(u string) Option {
	return func(c *Client) {
		c.tokenURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client authenticating to the provider with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("identity provider API key cannot be empty")
	}

	c := &Client{
		apiKey:     apiKey,
		tokenURL:   DefaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh exchanges refreshToken for a new access token. It never retries;
// every failure is an *AuthError.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	const op = "refresh access token"

	if refreshToken == "" {
		return AccessToken{}, &AuthError{Op: op, Err: errors.New("refresh token is empty")}
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return AccessToken{}, &AuthError{Op: op, Err: err}
	}

	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		authErr := &AuthError{Op: op, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return AccessToken{}, authErr
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return AccessToken{}, &AuthError{Op: op, Err: errors.New("token response has no id_token")}
	}

	return AccessToken{
		Value:     idToken,
		ExpiresAt: expiryOf(idToken, tok.Expiry),
	}, nil
}

// endpoint returns the token URL with the API key query parameter.
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.tokenURL)
	if err != nil {
		return "", fmt.Errorf("invalid token URL %q: %w", c.tokenURL, err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// expiryOf reads the exp claim of an ID token without verifying its signature;
// the remote service does the verification. Falls back to the lifetime the
// token endpoint reported.
func expiryOf(idToken string, fallback time.Time) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return fallback
}
