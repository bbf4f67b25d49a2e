package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// Name identifies a supported identity provider.
type Name string

const (
	Google   Name = "google"
	Facebook Name = "facebook"
	Twitter  Name = "twitter"
)

// Twitter authorization endpoint used when the configuration does not override it.
const DefaultTwitterAuthEndpoint = "https://api.twitter.com/oauth/authenticate"

// Names lists the supported providers in a stable order.
func Names() []Name {
	return []Name{Google, Facebook, Twitter}
}

// DisplayName returns the provider name as shown to users.
func (n Name) DisplayName() string {
	switch n {
	case Google:
		return "Google"
	case Facebook:
		return "Facebook"
	case Twitter:
		return "Twitter"
	}
	return string(n)
}

// ParseName converts a provider name to its Name value.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := policies[n]; !ok {
		return "", &ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", s)}
	}
	return n, nil
}

// Config is the validated, immutable description of one provider.
type Config struct {
	Provider     Name
	ClientID     string
	ClientSecret string
	Scope        string
	RedirectURI  *url.URL

	// AuthEndpoint and TokenEndpoint are required for OAuth2 providers only.
	AuthEndpoint  *url.URL
	TokenEndpoint *url.URL

	// IssuerURI enables ID token verification when set.
	IssuerURI     string
	HTTPSRequired bool
}

// Policy returns the provider's protocol policy.
func (c *Config) Policy() Policy {
	return PolicyFor(c.Provider)
}

// AuthorizationEndpoint returns the endpoint the user is sent to for consent.
// Twitter falls back to the fixed REST endpoint.
func (c *Config) AuthorizationEndpoint() *url.URL {
	if c.AuthEndpoint != nil {
		return c.AuthEndpoint
	}
	if c.Provider == Twitter {
		u, _ := url.Parse(DefaultTwitterAuthEndpoint)
		return u
	}
	return nil
}

// ValidateOption customizes Validate.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	redirectCheck func(*url.URL) error
}

// WithRedirectCheck verifies that the redirect URI is one the application can
// actually receive.
func WithRedirectCheck(check func(*url.URL) error) ValidateOption {
	return func(o *validateOptions) {
		o.redirectCheck = check
	}
}

// Validate checks the configuration. Every failure is a *ConfigurationError.
func (c *Config) Validate(opts ...ValidateOption) error {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	policy, ok := policies[c.Provider]
	if !ok {
		return &ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unsupported provider %q", c.Provider)}
	}

	if strings.TrimSpace(c.ClientID) == "" {
		return &ConfigurationError{Provider: c.Provider, Field: "client_id", Reason: "is required"}
	}
	if strings.TrimSpace(c.Scope) == "" {
		return &ConfigurationError{Provider: c.Provider, Field: "authorization_scope", Reason: "is required"}
	}
	if policy.RequiresSecret && c.ClientSecret == "" {
		return &ConfigurationError{Provider: c.Provider, Field: policy.SecretParam, Reason: "is required"}
	}

	if c.RedirectURI == nil {
		return &ConfigurationError{Provider: c.Provider, Field: "redirect_uri", Reason: "is required"}
	}
	if err := checkRedirectURI(c.RedirectURI); err != nil {
		return &ConfigurationError{Provider: c.Provider, Field: "redirect_uri", Reason: err.Error()}
	}
	if o.redirectCheck != nil {
		if err := o.redirectCheck(c.RedirectURI); err != nil {
			return &ConfigurationError{Provider: c.Provider, Field: "redirect_uri", Reason: err.Error()}
		}
	}

	endpoints := []struct {
		field string
		uri   *url.URL
	}{
		{"authorization_endpoint_uri", c.AuthEndpoint},
		{"token_endpoint_uri", c.TokenEndpoint},
	}
	for _, e := range endpoints {
		if e.uri == nil {
			if policy.Protocol == OAuth2 {
				return &ConfigurationError{Provider: c.Provider, Field: e.field, Reason: "is required"}
			}
			continue
		}
		if err := c.checkWebURI(e.uri); err != nil {
			return &ConfigurationError{Provider: c.Provider, Field: e.field, Reason: err.Error()}
		}
	}

	return nil
}

func (c *Config) checkWebURI(u *url.URL) error {
	if err := checkRedirectURI(u); err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
	case "http":
		if c.HTTPSRequired {
			return fmt.Errorf("must use https")
		}
	default:
		return fmt.Errorf("must have an http or https scheme")
	}
	return nil
}

// ParseRedirectURI parses raw and applies the redirect URI rules: absolute,
// hierarchical, no user info, query or fragment.
func ParseRedirectURI(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("could not be parsed: %w", err)
	}
	if err := checkRedirectURI(u); err != nil {
		return nil, err
	}
	return u, nil
}

func checkRedirectURI(u *url.URL) error {
	if !u.IsAbs() || u.Opaque != "" {
		return fmt.Errorf("must be hierarchical and absolute")
	}
	if u.User != nil {
		return fmt.Errorf("must not have user info")
	}
	if u.RawQuery != "" || u.ForceQuery {
		return fmt.Errorf("must not have query parameters")
	}
	if u.Fragment != "" || u.RawFragment != "" {
		return fmt.Errorf("must not have a fragment")
	}
	return nil
}
