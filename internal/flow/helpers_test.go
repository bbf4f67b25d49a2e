package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/blobstore"
	"github.com/florianilch/sociallogin/internal/provider"
)

// memoryBlobs is an in-memory blobstore.Store that counts writes.
type memoryBlobs struct {
	mu        sync.Mutex
	value     string
	set       bool
	writes    atomic.Int32
	failWrite error
}

func (m *memoryBlobs) Read(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", fmt.Errorf("memory: %w", blobstore.ErrNotFound)
	}
	return m.value, nil
}

func (m *memoryBlobs) Write(ctx context.Context, value string) error {
	m.writes.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.value = value
	m.set = true
	return nil
}

// tokenServer is an OAuth2 token endpoint. It answers authorization_code and
// refresh_token grants with the configured bodies.
type tokenServer struct {
	exchangeStatus int
	exchangeBody   string
	refreshStatus  int
	refreshBody    string

	mu    sync.Mutex
	forms []url.Values
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.forms = append(s.forms, r.PostForm)
	s.mu.Unlock()

	status, body := s.exchangeStatus, s.exchangeBody
	if r.PostForm.Get("grant_type") == "refresh_token" {
		status, body = s.refreshStatus, s.refreshBody
	}
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write([]byte(body))
}

func (s *tokenServer) requests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.forms...)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func googleConfig(t *testing.T, tokenURL string) provider.Config {
	t.Helper()
	return provider.Config{
		Provider:      provider.Google,
		ClientID:      "client-123",
		Scope:         "openid email",
		RedirectURI:   mustURL(t, "http://127.0.0.1:8765/oauth2redirect"),
		AuthEndpoint:  mustURL(t, "https://accounts.example/auth"),
		TokenEndpoint: mustURL(t, tokenURL),
	}
}

func twitterConfig(t *testing.T) provider.Config {
	t.Helper()
	return provider.Config{
		Provider:     provider.Twitter,
		ClientID:     "consumer-key",
		ClientSecret: "secret",
		Scope:        "read",
		RedirectURI:  mustURL(t, "http://127.0.0.1:8765/oauth1redirect"),
	}
}

// approve answers an OAuth2 authorization request with code, echoing state.
func approve(code string) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req AuthorizationRequest) (Callback, error) {
		u, err := url.Parse(req.URL)
		if err != nil {
			return Callback{}, err
		}
		return Callback{Query: url.Values{
			"code":  {code},
			"state": {u.Query().Get("state")},
		}}, nil
	})
}

func respond(q url.Values) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req AuthorizationRequest) (Callback, error) {
		return Callback{Query: q}, nil
	})
}

func dismiss() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req AuthorizationRequest) (Callback, error) {
		return Callback{}, ErrCancelled
	})
}

type harness struct {
	blobs       *memoryBlobs
	store       *authstate.Store
	coordinator *Coordinator

	mu          sync.Mutex
	transitions []Phase
}

func (h *harness) phases() []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Phase(nil), h.transitions...)
}

func newHarness(t *testing.T, authorizer Authorizer, opts ...Option) *harness {
	t.Helper()
	h := &harness{blobs: &memoryBlobs{}}

	store, err := authstate.NewStore(h.blobs)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	h.store = store

	opts = append([]Option{WithObserver(func(tr Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, tr.Phase)
	})}, opts...)
	c, err := New(store, authorizer, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	h.coordinator = c
	return h
}

func startServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func wantStatus(t *testing.T, got Outcome, want Status) {
	t.Helper()
	if got.Status != want {
		t.Fatalf("Status = %v (err %v), want %v", got.Status, got.Err, want)
	}
}

func errorAs[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
