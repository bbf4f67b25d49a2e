package tokensource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/florianilch/sociallogin/internal/provider"
)

// tokenEndpoint records the form posted to it and replies with a canned body.
type tokenEndpoint struct {
	status int
	body   string

	mu   sync.Mutex
	form url.Values
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	e.form = r.PostForm
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if e.status != 0 {
		w.WriteHeader(e.status)
	}
	_, _ = w.Write([]byte(e.body))
}

func (e *tokenEndpoint) posted() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form
}

func testConfig(t *testing.T, name provider.Name, tokenURL string) provider.Config {
	t.Helper()
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		return u
	}
	return provider.Config{
		Provider:      name,
		ClientID:      "client-123",
		ClientSecret:  "shh",
		Scope:         "openid email",
		RedirectURI:   parse("http://127.0.0.1:8765/oauth2redirect"),
		AuthEndpoint:  parse("https://provider.example/auth"),
		TokenEndpoint: parse(tokenURL),
	}
}

func newClient(t *testing.T, name provider.Name, endpoint *tokenEndpoint) *Client {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	client, err := New(testConfig(t, name, srv.URL+"/token"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestAuthCodeURL(t *testing.T) {
	client := newClient(t, provider.Google, &tokenEndpoint{})
	verifier := oauth2.GenerateVerifier()

	raw := client.AuthCodeURL("state-1", verifier)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"client_id":             "client-123",
		"redirect_uri":          "http://127.0.0.1:8765/oauth2redirect",
		"response_type":         "code",
		"scope":                 "openid email",
		"state":                 "state-1",
		"code_challenge_method": "S256",
		"code_challenge":        oauth2.S256ChallengeFromVerifier(verifier),
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if q.Has("client_secret") {
		t.Error("authorization URL leaks the client secret")
	}
}

func TestExchangeSecretInjection(t *testing.T) {
	tests := []struct {
		name       provider.Name
		wantSecret bool
	}{
		{provider.Google, false},
		{provider.Facebook, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			endpoint := &tokenEndpoint{body: `{"access_token":"at-1","token_type":"Bearer","refresh_token":"rt-1","expires_in":3600,"id_token":"idt"}`}
			client := newClient(t, tt.name, endpoint)

			tok, err := client.Exchange(context.Background(), "code-1", "verifier-1")
			if err != nil {
				t.Fatalf("Exchange: %v", err)
			}
			if tok.AccessToken != "at-1" || tok.RefreshToken != "rt-1" || tok.Extra("id_token") != "idt" {
				t.Errorf("token = %+v", tok)
			}

			form := endpoint.posted()
			if form.Get("grant_type") != "authorization_code" || form.Get("code") != "code-1" || form.Get("code_verifier") != "verifier-1" {
				t.Errorf("form = %v", form)
			}
			if got := form.Get("client_secret"); (got == "shh") != tt.wantSecret {
				t.Errorf("client_secret = %q, want present=%v", got, tt.wantSecret)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	endpoint := &tokenEndpoint{body: `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`}
	client := newClient(t, provider.Facebook, endpoint)

	tok, err := client.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	form := endpoint.posted()
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "rt-1" || form.Get("client_secret") != "shh" {
		t.Errorf("form = %v", form)
	}
}

func TestExchangeOAuthError(t *testing.T) {
	endpoint := &tokenEndpoint{
		status: http.StatusBadRequest,
		body:   `{"error":"invalid_grant","error_description":"code expired"}`,
	}
	client := newClient(t, provider.Google, endpoint)

	_, err := client.Exchange(context.Background(), "code-1", "verifier-1")
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("Exchange() error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.ErrorCode != "invalid_grant" || !strings.Contains(retrieveErr.ErrorDescription, "expired") {
		t.Errorf("RetrieveError = %+v", retrieveErr)
	}
}

func TestNewRejectsOAuth1Provider(t *testing.T) {
	cfg := testConfig(t, provider.Twitter, "https://api.twitter.com/oauth/access_token")
	if _, err := New(cfg); err == nil {
		t.Error("New() accepted an OAuth1 provider")
	}
}
