package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ac-freeman/open-accountability/internal/device"
	"github.com/ac-freeman/open-accountability/internal/identity"
	"github.com/sirupsen/logrus"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls  int
	token  string
	expiry time.Time
	err    error
}

func (r *countingRefresher) Refresh(_ context.Context, refreshToken string) (identity.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return identity.AccessToken{}, r.err
	}
	return identity.AccessToken{Value: r.token, ExpiresAt: r.expiry}, nil
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

// fakeBackend replies with statuses in order; the last status repeats.
type fakeBackend struct {
	mu       sync.Mutex
	statuses []int
	reply    string
	requests []recordedRequest
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.body)
	}
	b.requests = append(b.requests, rec)

	status := b.statuses[len(b.statuses)-1]
	if n := len(b.requests); n <= len(b.statuses) {
		status = b.statuses[n-1]
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, b.reply)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, backend http.Handler, refresher identity.Refresher) *Client {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, refresher, WithHTTPClient(server.Client()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func testIdentity() *device.Identity {
	return &device.Identity{
		RefreshToken: "refresh-credential",
		AccessToken:  "stale-access",
		UUID:         "device-1",
		Name:         "laptop",
	}
}

func TestNewClient_RequiresRefresher(t *testing.T) {
	if _, err := NewClient("http://example.invalid", nil); err == nil {
		t.Error("expected error for nil refresher")
	}
}

func TestDo_PassesThroughStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"ok", http.StatusOK},
		{"created", http.StatusCreated},
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{statuses: []int{tt.status}, reply: "body"}
			refresher := &countingRefresher{token: "fresh"}
			c := newTestClient(t, backend, refresher)

			resp, err := c.do(context.Background(), testIdentity(), http.MethodPost, "/x", &OfflineRequest{})
			if err != nil {
				t.Fatalf("do() error = %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.status)
			}
			if refresher.calls != 0 {
				t.Errorf("refresher called %d times, want 0", refresher.calls)
			}
			if len(backend.requests) != 1 {
				t.Errorf("requests = %d, want 1", len(backend.requests))
			}
		})
	}
}

func TestDo_RefreshesOnceOn401(t *testing.T) {
	backend := &fakeBackend{statuses: []int{http.StatusUnauthorized, http.StatusOK}, reply: "done"}
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	refresher := &countingRefresher{token: "fresh-access", expiry: expiry}
	c := newTestClient(t, backend, refresher)
	id := testIdentity()

	resp, err := c.do(context.Background(), id, http.MethodPost, PathEvent, &EventRequest{DeviceUUID: id.UUID})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Text() != "done" {
		t.Errorf("response = %d %q", resp.StatusCode, resp.Text())
	}
	if refresher.calls != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
	if id.AccessToken != "fresh-access" {
		t.Errorf("identity access token = %q, want fresh-access", id.AccessToken)
	}
	if !id.AccessTokenExpiry.Equal(expiry) {
		t.Errorf("identity token expiry = %v, want %v", id.AccessTokenExpiry, expiry)
	}
	if len(backend.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(backend.requests))
	}
	if got := backend.requests[0].body["id_token"]; got != "stale-access" {
		t.Errorf("first id_token = %v, want stale-access", got)
	}
	if got := backend.requests[1].body["id_token"]; got != "fresh-access" {
		t.Errorf("second id_token = %v, want fresh-access", got)
	}
	for i, r := range backend.requests {
		if r.auth != "Bearer refresh-credential" {
			t.Errorf("request %d Authorization = %q", i, r.auth)
		}
	}
}

func TestDo_Second401IsFinal(t *testing.T) {
	backend := &fakeBackend{statuses: []int{http.StatusUnauthorized}}
	refresher := &countingRefresher{token: "fresh"}
	c := newTestClient(t, backend, refresher)

	resp, err := c.do(context.Background(), testIdentity(), http.MethodPatch, PathDevice, &OfflineRequest{})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
	}
	if refresher.calls != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
	if len(backend.requests) != 2 {
		t.Errorf("requests = %d, want exactly 2", len(backend.requests))
	}
}

func TestDo_RefreshFailure(t *testing.T) {
	backend := &fakeBackend{statuses: []int{http.StatusUnauthorized}}
	refresher := &countingRefresher{err: &identity.AuthError{Op: "refresh", StatusCode: 400, Err: errors.New("revoked")}}
	c := newTestClient(t, backend, refresher)

	_, err := c.do(context.Background(), testIdentity(), http.MethodPost, PathEvent, &EventRequest{})
	if !errors.Is(err, identity.ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
	if len(backend.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(backend.requests))
	}
}

func TestDo_PaymentRequired(t *testing.T) {
	backend := &fakeBackend{statuses: []int{http.StatusPaymentRequired}}
	refresher := &countingRefresher{token: "fresh"}
	c := newTestClient(t, backend, refresher)

	_, err := c.do(context.Background(), testIdentity(), http.MethodPost, PathEvent, &EventRequest{})
	if !errors.Is(err, ErrEntitlement) {
		t.Fatalf("error = %v, want ErrEntitlement", err)
	}
	var ee *EntitlementError
	if !errors.As(err, &ee) || ee.Path != PathEvent {
		t.Errorf("EntitlementError = %+v", ee)
	}
	if errors.Is(err, identity.ErrAuth) {
		t.Error("entitlement failure must not be an auth failure")
	}
	if refresher.calls != 0 || len(backend.requests) != 1 {
		t.Errorf("refresh calls = %d requests = %d, want 0 and 1", refresher.calls, len(backend.requests))
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url, &countingRefresher{}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.do(context.Background(), testIdentity(), http.MethodGet, PathBlacklist, nil)
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if ne.Method != http.MethodGet || ne.URL != url+PathBlacklist {
		t.Errorf("NetworkError = %+v", ne)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	backend := &fakeBackend{statuses: []int{http.StatusOK}}
	c := newTestClient(t, backend, &countingRefresher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.do(ctx, testIdentity(), http.MethodGet, PathBlacklist, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResponse_Text(t *testing.T) {
	r := &Response{StatusCode: 200, Body: []byte("  \"3f1c-uuid\"\n")}
	if got := r.Text(); got != "3f1c-uuid" {
		t.Errorf("Text() = %q", got)
	}
	if !r.OK() {
		t.Error("OK() = false for 200")
	}
	if (&Response{StatusCode: 302}).OK() {
		t.Error("OK() = true for 302")
	}
}
