package flow

import (
	"context"
	"net/url"

	"github.com/florianilch/sociallogin/internal/provider"
)

// AuthorizationRequest asks the user to grant access at URL. The provider
// redirects back to RedirectURI when the user is done.
type AuthorizationRequest struct {
	Provider    provider.Name
	URL         string
	RedirectURI *url.URL
}

// Callback is what the provider delivered to the redirect URI.
type Callback struct {
	Query url.Values
}

// Authorizer presents an authorization request to the user and waits for the
// redirect. It returns ErrCancelled, or the context's error, when the user
// dismisses the request.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (Callback, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req AuthorizationRequest) (Callback, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, req AuthorizationRequest) (Callback, error) {
	return f(ctx, req)
}
