// Package server hosts the partners HTTP/WebSocket process.
//
// It owns the connection lifecycle and message routing and delegates
// identity, admission, invitation state and partnership persistence to the
// injected collaborators so the transport layer stays thin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/partnerhub/partnerhub/internal/platform/timeouts"
	"github.com/partnerhub/partnerhub/internal/services/partners/partnership"
	"github.com/partnerhub/partnerhub/internal/services/partners/ratelimit"
	"github.com/partnerhub/partnerhub/internal/services/partners/session"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
	sqlitestore "github.com/partnerhub/partnerhub/internal/services/partners/storage/sqlite"
	"github.com/partnerhub/partnerhub/internal/services/partners/token"
)

// Config defines the inputs for the partners transport boundary.
type Config struct {
	HTTPAddr          string
	DBPath            string
	Token             token.Config
	RateLimit         int
	RateWindow        time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Deps bundles the collaborators behind the WebSocket surface. Tests wire
// fakes here; production wiring happens in NewServer.
type Deps struct {
	Validator   *token.Validator
	Registry    *session.Registry
	Limiter     *ratelimit.Limiter
	Coordinator *partnership.Coordinator
	Accounts    storage.AccountStore
}

// Server runs the partners HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           *sqlitestore.Store
}

type wsIdentityContextKey struct{}

// NewHandler creates the partners routes around the given collaborators.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, deps)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if deps.Validator == nil {
			http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
			return
		}

		raw := bearerTokenFromRequest(r)
		identity, err := deps.Validator.Validate(raw)
		if err != nil {
			log.Printf("partners: websocket unauthorized: %v remote=%s path=%q", err, r.RemoteAddr, r.URL.Path)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), wsIdentityContextKey{}, connIdentity{
			username: identity.Username,
			rawToken: raw,
		})
		wsHandler.ServeHTTP(w, r.WithContext(ctx))
	})

	return mux
}

type connIdentity struct {
	username string
	rawToken string
}

// bearerTokenFromRequest extracts the connection token from the token query
// parameter or an Authorization: Bearer header.
func bearerTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if value := strings.TrimSpace(r.URL.Query().Get("token")); value != "" {
		return value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// NewServer builds a configured partners server with production wiring.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if strings.TrimSpace(config.DBPath) == "" {
		return nil, errors.New("db path is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	validator, err := token.NewValidator(config.Token)
	if err != nil {
		return nil, fmt.Errorf("init token validator: %w", err)
	}

	store, err := sqlitestore.Open(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open partners store: %w", err)
	}

	registry := session.NewRegistry()
	deps := Deps{
		Validator:   validator,
		Registry:    registry,
		Limiter:     ratelimit.NewLimiter(config.RateLimit, config.RateWindow),
		Coordinator: partnership.NewCoordinator(store, store, store, registry),
		Accounts:    store,
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a partners server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init partners server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve partners: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("partners server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("partners server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("partners: close store: %v", err)
		}
	}
}
