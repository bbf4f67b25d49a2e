package tokensource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/sociallogin/internal/provider"
)

// Option configures a Client.
type Option func(*clientConfig)

// clientConfig holds configuration for New.
type clientConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds each token request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// Client talks to an OAuth2 provider's authorization and token endpoints.
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// New creates a Client for an OAuth2 provider configuration. Providers whose
// policy requires a pre-shared secret get it injected into every token request
// under the policy's parameter name.
func New(cfg provider.Config, opts ...Option) (*Client, error) {
	policy := cfg.Policy()
	if policy.Protocol != provider.OAuth2 {
		return nil, fmt.Errorf("provider %s does not use OAuth2", cfg.Provider)
	}
	if cfg.AuthEndpoint == nil || cfg.TokenEndpoint == nil || cfg.RedirectURI == nil {
		return nil, fmt.Errorf("provider %s: incomplete endpoint configuration", cfg.Provider)
	}

	c := &clientConfig{
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := c.baseTransport
	if policy.RequiresSecret {
		transport = &clientSecretTransport{
			base:   transport,
			param:  policy.SecretParam,
			secret: cfg.ClientSecret,
		}
	}

	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: "", // Sent by clientSecretTransport when the provider policy asks for it
			Scopes:       strings.Fields(cfg.Scope),
			RedirectURL:  cfg.RedirectURI.String(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthEndpoint.String(),
				TokenURL:  cfg.TokenEndpoint.String(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{
			Timeout:   c.timeout,
			Transport: transport,
		},
	}, nil
}

// AuthCodeURL returns the consent page URL for state with a PKCE S256 challenge
// derived from verifier.
func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code and its PKCE verifier for a token.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return c.config.Exchange(c.context(ctx), code, oauth2.VerifierOption(verifier))
}

// Refresh obtains a new token with a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// ReuseTokenSource would skip the call for a still-valid token; use the raw source
	ts := c.config.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return ts.Token()
}

// oauth2 picks up custom HTTP clients from the context (oauth2.HTTPClient key).
func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// clientSecretTransport adds the provider's pre-shared secret to form-encoded
// token requests. The oauth2 package only sends token endpoint requests through
// this transport.
type clientSecretTransport struct {
	base   http.RoundTripper
	param  string
	secret string
}

// Compile-time check that clientSecretTransport implements http.RoundTripper.
var _ http.RoundTripper = (*clientSecretTransport)(nil)

// RoundTrip rewrites the request body with the secret parameter added.
func (t *clientSecretTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil {
		return t.base.RoundTrip(req)
	}
	// We consume the body entirely and hand a new one to the cloned request
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}
	form.Set(t.param, t.secret)
	encoded := []byte(form.Encode())

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(encoded))
	newReq.ContentLength = int64(len(encoded))
	newReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(encoded)), nil
	}

	return t.base.RoundTrip(newReq)
}
