// Package api talks to the accountability backend. Every call goes through
// the refresh-retry protocol in do.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/identity"
	"github.com/ac-freeman/open-accountability/internal/version"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the production backend.
const DefaultBaseURL = "https://us-central1-openaccountability.cloudfunctions.net"

const defaultTimeout = 30 * time.Second

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body trimmed of surrounding whitespace and quotes.
func (r *Response) Text() string {
	return strings.Trim(strings.TrimSpace(string(r.Body)), `"`)
}

// Client sends authenticated requests on behalf of a device identity.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresher  identity.Refresher
	logger     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a backend client. refresher renews access tokens when the
// backend answers 401.
func NewClient(baseURL string, refresher identity.Refresher, opts ...Option) (*Client, error) {
	if refresher == nil {
		return nil, errors.New("api: refresher is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		refresher:  refresher,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends one request under the refresh-retry protocol:
//
//   - 401: refresh the access token once, store it on id, resend once and
//     return that second response as final whatever its status.
//   - 402: fail with *EntitlementError.
//   - anything else: return the response.
//
// Transport failures surface as *NetworkError and are not retried.
func (c *Client) do(ctx context.Context, id *device.Identity, method, path string, body TokenCarrier) (*Response, error) {
	if body != nil {
		body.SetAccessToken(id.AccessToken)
	}

	resp, err := c.send(ctx, id, method, path, body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Info("Access token rejected, refreshing")

		tok, err := c.refresher.Refresh(ctx, id.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("refresh after 401 on %s %s: %w", method, path, err)
		}
		id.AccessToken = tok.Value
		id.AccessTokenExpiry = tok.ExpiresAt
		if body != nil {
			body.SetAccessToken(tok.Value)
		}
		return c.send(ctx, id, method, path, body)

	case http.StatusPaymentRequired:
		return nil, &EntitlementError{Method: method, Path: path}
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, id *device.Identity, method, path string, body TokenCarrier) (*Response, error) {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+id.RefreshToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"elapsed": elapsed,
		}).WithError(err).Warn("Request failed")
		return nil, &NetworkError{Method: method, URL: url, Elapsed: elapsed, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: url, Elapsed: time.Since(start), Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"status":  httpResp.StatusCode,
		"elapsed": elapsed,
	}).Debug("Request completed")

	return &Response{StatusCode: httpResp.StatusCode, Body: data}, nil
}
