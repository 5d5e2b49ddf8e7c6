package pairing

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
	"time"

	"github.com/ac-freeman/open-accountability/internal/security"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

//go:embed web
var assets embed.FS

// NonceHeader carries the per-session nonce embedded in the pairing page.
const NonceHeader = "X-Pairing-Nonce"

const maxLoginBody = 64 << 10

var indexTemplate = template.Must(template.ParseFS(assets, "web/index.html"))

// WebConfig configures the browser pairing flow.
type WebConfig struct {
	Listen      string // default 127.0.0.1:8000
	OpenBrowser bool
	APIKey      string // identity provider key used by the sign-in page
}

// WebProvider serves a local sign-in page and waits for the browser to post
// the resulting credential back.
type WebProvider struct {
	cfg     WebConfig
	logger  logrus.FieldLogger
	opener  func(url string) error
	limiter *security.RateLimiter
}

// NewWebProvider creates a browser pairing provider.
func NewWebProvider(cfg WebConfig, logger logrus.FieldLogger) *WebProvider {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8000"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebProvider{
		cfg:     cfg,
		logger:  logger,
		opener:  openBrowser,
		limiter: security.NewRateLimiter(10, time.Minute),
	}
}

func openBrowser(url string) error {
	return exec.Command("xdg-open", url).Start()
}

// ObtainCredential implements Provider. The server runs only until the first
// valid credential arrives or ctx is cancelled.
func (p *WebProvider) ObtainCredential(ctx context.Context) (Credential, error) {
	ln, err := net.Listen("tcp", p.cfg.Listen)
	if err != nil {
		return Credential{}, fmt.Errorf("starting pairing server: %w", err)
	}

	received := make(chan Credential, 1)
	srv := &http.Server{
		Handler:           p.router(uuid.NewString(), received),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	url := "http://" + ln.Addr().String()
	p.logger.WithField("url", url).Info("Waiting for device pairing in the browser")
	if p.cfg.OpenBrowser {
		if err := p.opener(url); err != nil {
			p.logger.WithError(err).Warn("Could not open a browser, visit the URL manually")
		}
	}

	select {
	case cred := <-received:
		p.logger.WithField("device_name", cred.DeviceName).Info("Pairing credential received")
		return cred, nil
	case err := <-serveErr:
		return Credential{}, fmt.Errorf("pairing server: %w", err)
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

func (p *WebProvider) router(nonce string, received chan<- Credential) http.Handler {
	static, err := fs.Sub(assets, "web/static")
	if err != nil {
		panic(err)
	}

	r := mux.NewRouter()
	r.Use(p.limiter.Middleware(security.RemoteAddrKey))
	r.HandleFunc("/", p.handleIndex(nonce)).Methods(http.MethodGet)
	r.HandleFunc("/login", p.handleLogin(nonce, received)).Methods(http.MethodPost)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return r
}

func (p *WebProvider) handleIndex(nonce string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		err := indexTemplate.Execute(w, struct {
			APIKey     string
			Nonce      string
			DeviceName string
		}{p.cfg.APIKey, nonce, DefaultDeviceName()})
		if err != nil {
			p.logger.WithError(err).Warn("Failed to render pairing page")
		}
	}
}

func (p *WebProvider) handleLogin(nonce string, received chan<- Credential) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(NonceHeader) != nonce {
			http.Error(w, "invalid pairing session", http.StatusForbidden)
			return
		}

		var cred Credential
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&cred); err != nil {
			http.Error(w, "malformed credential", http.StatusBadRequest)
			return
		}
		if err := cred.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case received <- cred:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = fmt.Fprintf(w, "Device %q paired\n", cred.DeviceName)
		default:
			http.Error(w, "device already paired", http.StatusConflict)
		}
	}
}
