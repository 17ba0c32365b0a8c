package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/listener"
)

// Server is the status dashboard served next to a running listener.
type Server struct {
	addr   string
	server *http.Server
	auth   *AuthManager
	status *listener.Status
	config config.Config
}

// NewServer serves status and a redacted copy of cfg on addr.
func NewServer(addr string, cfg *config.Config, status *listener.Status) (*Server, error) {
	if cfg.Web.PasswordHash == "" {
		return nil, errors.New("web.password_hash is required to serve the status dashboard (run `mail-listener init`)")
	}

	return &Server{
		addr:   addr,
		auth:   NewAuthManager(cfg.Web.Username, cfg.Web.PasswordHash),
		status: status,
		config: cfg.Redacted(),
	}, nil
}

// Handler returns the routes of the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	// Protected routes
	mux.Handle("/", s.auth.RequireAuth(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("/status", s.auth.RequireAuth(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/config", s.auth.RequireAuth(http.HandlerFunc(s.handleConfig)))

	return mux
}

// Start serves until ctx is done, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.auth.cleanupExpiredSessions(ctx)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Web server starting", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}
