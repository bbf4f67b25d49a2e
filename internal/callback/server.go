package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/florianilch/sociallogin/internal/flow"
)

// ErrBusy is returned when an authorization is already waiting for its redirect.
var ErrBusy = errors.New("another authorization is in progress")

// Server receives authorization redirects on a loopback address.
type Server struct {
	redirect *url.URL
	opener   Opener

	mux    *http.ServeMux
	server *http.Server

	mu      sync.Mutex
	pending chan url.Values
}

// Compile-time checks
var (
	_ http.Handler    = (*Server)(nil)
	_ flow.Authorizer = (*Server)(nil)
)

// NewServer creates a receiver for redirect, which must be a loopback http URI.
func NewServer(redirect *url.URL, opener Opener) (*Server, error) {
	if !IsLoopback(redirect) {
		return nil, fmt.Errorf("redirect URI %s is not a loopback http address", redirect)
	}
	if opener == nil {
		return nil, fmt.Errorf("missing opener")
	}

	s := &Server{
		redirect: redirect,
		opener:   opener,
		mux:      http.NewServeMux(),
	}

	s.mux.Handle("GET "+redirectPath(redirect), applyMiddlewares(http.HandlerFunc(s.handleRedirect),
		Logging(slog.Default()),
		Recovery,
	))

	return s, nil
}

// IsLoopback reports whether u is an http URI on a loopback host that Server
// can listen on.
func IsLoopback(u *url.URL) bool {
	if u == nil || u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Address returns the listen address derived from the redirect URI.
func (s *Server) Address() string {
	if s.redirect.Port() == "" {
		return net.JoinHostPort(s.redirect.Hostname(), "80")
	}
	return s.redirect.Host
}

// CheckRedirect reports whether u is delivered to this server.
func (s *Server) CheckRedirect(u *url.URL) error {
	if !IsLoopback(u) || u.Host != s.redirect.Host || redirectPath(u) != redirectPath(s.redirect) {
		return fmt.Errorf("is not served by the loopback receiver at %s", s.redirect)
	}
	return nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Authorize shows the authorization URL and waits for the provider's redirect.
// It implements flow.Authorizer.
func (s *Server) Authorize(ctx context.Context, req flow.AuthorizationRequest) (flow.Callback, error) {
	ch := make(chan url.Values, 1)
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return flow.Callback{}, ErrBusy
	}
	s.pending = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.pending == ch {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	if err := s.opener.Open(ctx, req.URL); err != nil {
		return flow.Callback{}, fmt.Errorf("opening authorization URL: %w", err)
	}

	select {
	case q := <-ch:
		return flow.Callback{Query: q}, nil
	case <-ctx.Done():
		return flow.Callback{}, ctx.Err()
	}
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	s.mu.Lock()
	ch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if ch == nil {
		writePage(w, http.StatusConflict, "No sign-in is in progress. You can close this window.")
		return
	}
	ch <- q

	if q.Has("error") || q.Has("denied") {
		writePage(w, http.StatusOK, "Sign-in was not completed. You can close this window.")
		return
	}
	writePage(w, http.StatusOK, "Sign-in received. You can close this window and return to the terminal.")
}

func writePage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, message)
}

func redirectPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
