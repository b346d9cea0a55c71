package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"integrate/internal/detect"
	"integrate/internal/oauth"
	"integrate/pkg/logging"
)

const (
	DefaultAddr        = "localhost:8090"
	DefaultMetricsPath = "/metrics"

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout covers token exchanges with slow providers.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. "localhost:8090".
	Addr string

	// Manager runs the OAuth flows. Required.
	Manager *oauth.Manager

	// OAuthPrefix is where the OAuth actions are mounted.
	OAuthPrefix string

	// MetricsPath serves Gatherer. An empty Gatherer disables the endpoint.
	MetricsPath string
	Gatherer    prometheus.Gatherer

	// Detectors identify the app user from session cookies. Nil disables
	// detection.
	Detectors detect.Chain
}

// Server serves the OAuth actions plus health and metrics endpoints.
type Server struct {
	opts       Options
	handler    http.Handler
	httpServer *http.Server
}

// New creates a Server. It does not start listening.
func New(opts Options) (*Server, error) {
	if opts.Manager == nil {
		return nil, fmt.Errorf("oauth manager is required")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = DefaultMetricsPath
	}

	s := &Server{opts: opts}
	s.handler = s.createMux()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s, nil
}

// Handler returns the server's root handler, for mounting into another mux
// or for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) createMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/whoami", s.serveWhoAmI)

	if s.opts.Gatherer != nil {
		mux.Handle(s.opts.MetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	oauthHandler := oauth.NewHandler(s.opts.Manager, s.opts.OAuthPrefix)
	mux.Handle(oauthHandler.Prefix()+"/", oauthHandler)
	logging.Info("Server", "Registered OAuth actions under %s/", oauthHandler.Prefix())

	return detectUser(s.opts.Detectors, mux)
}

type whoAmIResponse struct {
	Source    string     `json:"source"`
	UserID    string     `json:"userId,omitempty"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (s *Server) serveWhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	uc, ok := UserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := whoAmIResponse{Source: uc.Source, UserID: uc.UserID, Email: uc.Email}
	if !uc.ExpiresAt.IsZero() {
		resp.ExpiresAt = &uc.ExpiresAt
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(l)
}

// Serve serves on l until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(l net.Listener) error {
	logging.Info("Server", "Listening on %s", l.Addr())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Server", "Shutting down")
	return s.httpServer.Shutdown(ctx)
}
