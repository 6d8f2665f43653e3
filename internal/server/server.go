// Package server exposes the HTTP surface of the tts-server: the status
// endpoints and the speech synthesis endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/artifact"
	"github.com/book-expert/tts-server/internal/model"
	"github.com/book-expert/tts-server/internal/readiness"
)

const (
	defaultHost          = "127.0.0.1"
	defaultAllowedOrigin = "http://localhost:3000"
	readHeaderTimeout    = 10 * time.Second
	shutdownGracePeriod  = 10 * time.Second
)

// CORS response headers.
const (
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	allowAllValue          = "*"
	allowCredentialsValue  = "true"
)

// Options configure the HTTP listener and per-request policy.
type Options struct {
	// Host the listener binds to; defaults to loopback when empty.
	Host string
	// Port the listener binds to.
	Port int
	// GenerateTimeout bounds a single synthesis call. Zero disables the
	// bound.
	GenerateTimeout time.Duration
	// AllowedOrigin is the value served in Access-Control-Allow-Origin;
	// defaults to the local frontend origin when empty.
	AllowedOrigin string
}

// Server holds the request-serving state explicitly: the readiness status,
// the model loader, and the artifact manager are injected rather than held as
// package globals.
type Server struct {
	status          *readiness.Status
	loader          *model.Loader
	artifacts       *artifact.Manager
	generateTimeout time.Duration
	allowedOrigin   string
	log             *logger.Logger
	httpServer      *http.Server
}

// New creates the HTTP server and wires up its routes.
func New(
	opts Options,
	status *readiness.Status,
	loader *model.Loader,
	artifacts *artifact.Manager,
	log *logger.Logger,
) *Server {
	srv := &Server{
		status:          status,
		loader:          loader,
		artifacts:       artifacts,
		generateTimeout: opts.GenerateTimeout,
		allowedOrigin:   opts.AllowedOrigin,
		log:             log,
		httpServer:      nil,
	}

	host := opts.Host
	if host == "" {
		host = defaultHost
	}

	if srv.allowedOrigin == "" {
		srv.allowedOrigin = defaultAllowedOrigin
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", srv.handleRoot)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("POST /tts", srv.handleTTS)

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, opts.Port),
		Handler:           srv.withCORS(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// withCORS stamps cross-origin headers on every response so a browser
// frontend on another origin can call the API, and short-circuits preflight
// OPTIONS requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		header := writer.Header()
		header.Set(headerAllowOrigin, s.allowedOrigin)
		header.Set(headerAllowCredentials, allowCredentialsValue)
		header.Set(headerAllowMethods, allowAllValue)
		header.Set(headerAllowHeaders, allowAllValue)

		if request.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(writer, request)
	})
}

// Handler returns the full request handler, CORS wrapping included,
// primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It returns immediately; the serve
// loop runs on its own goroutine so the process accepts connections while the
// model is still loading.
func (s *Server) Start() {
	s.log.System("HTTP server listening on %s", s.httpServer.Addr)

	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server, waiting for in-flight requests
// up to the grace period.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGracePeriod)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}
