// Package server exposes the inbox, records and export over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zombor/billbox/internal/inbox"
	"github.com/zombor/billbox/internal/intake"
	"github.com/zombor/billbox/internal/receipt"
	"github.com/zombor/billbox/internal/scanning"
)

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Deps are the services the server routes to
type Deps struct {
	Inbox   *inbox.Service
	Intake  *intake.Service
	Records *receipt.Service
	Engines *scanning.Registry
	// UploadDir receives uploads before intake moves them into storage
	UploadDir string
}

// Server handles HTTP requests for the inbox and records
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}
	return user == s.basicAuth.Username && pass == s.basicAuth.Password
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="billbox"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/engines", s.requireAuth(s.handleEngines))

	s.mux.HandleFunc("GET /api/inbox/{id}/file", s.requireAuth(s.handleGetInboxFile))
	s.mux.HandleFunc("POST /api/inbox/{id}/ocr", s.requireAuth(s.handleSubmit))
	s.mux.HandleFunc("POST /api/inbox/{id}/retry", s.requireAuth(s.handleRetry))
	s.mux.HandleFunc("POST /api/inbox/{id}/approve", s.requireAuth(s.handleApprove))
	s.mux.HandleFunc("POST /api/inbox/{id}/reject", s.requireAuth(s.handleReject))
	s.mux.HandleFunc("GET /api/inbox/{id}", s.requireAuth(s.handleGetInboxItem))
	s.mux.HandleFunc("GET /api/inbox", s.requireAuth(s.handleListInbox))
	s.mux.HandleFunc("POST /api/inbox", s.requireAuth(s.handleUpload))

	for _, kind := range []receipt.Kind{receipt.KindBill, receipt.KindReceipt} {
		base := "/api/" + collection(kind)
		s.mux.HandleFunc("GET "+base+"/{id}", s.requireAuth(s.handleGetRecord(kind)))
		s.mux.HandleFunc("PATCH "+base+"/{id}", s.requireAuth(s.handleUpdateRecord(kind)))
		s.mux.HandleFunc("DELETE "+base+"/{id}", s.requireAuth(s.handleRemoveRecord(kind)))
		s.mux.HandleFunc("GET "+base, s.requireAuth(s.handleListRecords(kind)))
		s.mux.HandleFunc("POST "+base, s.requireAuth(s.handleCreateRecord(kind)))
	}

	s.mux.HandleFunc("GET /api/export.xlsx", s.requireAuth(s.handleExport))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
