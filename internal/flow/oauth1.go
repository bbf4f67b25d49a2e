package flow

import (
	"context"
	"errors"
	"net/http"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/oauth1"
	"github.com/florianilch/sociallogin/internal/provider"
)

// Session is the in-memory OAuth1 credential set of one login attempt. It is
// never persisted.
type Session struct {
	RequestToken       string
	RequestTokenSecret string
	Verifier           string
	AccessToken        string
	AccessTokenSecret  string
}

// OAuth1Flow is the three-legged OAuth1.0a flow used by Twitter.
type OAuth1Flow struct {
	cfg    provider.Config
	client *oauth1.Client
}

// Provider returns the provider this flow logs in to.
func (f *OAuth1Flow) Provider() provider.Name {
	return f.cfg.Provider
}

func (f *OAuth1Flow) run(ctx context.Context, r *runner) (Outcome, error) {
	name := f.cfg.Provider

	r.transition(ctx, name, RequestTokenRequested)
	rt, err := call(ctx, r, "request_token", f.client.RequestToken)
	if ctx.Err() != nil {
		return cancelled(name), nil
	}
	if err != nil {
		return failed(name, classifyOAuth1Error("request_token", err)), nil
	}
	session := &Session{RequestToken: rt.Token, RequestTokenSecret: rt.Secret}
	r.transition(ctx, name, RequestTokenReceived)

	authEndpoint := f.cfg.AuthorizationEndpoint()
	r.transition(ctx, name, AuthorizationRequested)
	cb, isCancelled, err := r.authorize(ctx, AuthorizationRequest{
		Provider:    name,
		URL:         oauth1.AuthorizeURL(authEndpoint, session.RequestToken),
		RedirectURI: f.cfg.RedirectURI,
	})
	if isCancelled {
		return cancelled(name), nil
	}
	if err != nil {
		return failed(name, err), nil
	}

	r.transition(ctx, name, VerifierReceived)
	q := cb.Query
	if q.Has("denied") {
		return cancelled(name), nil
	}
	if q.Get("oauth_token") != session.RequestToken {
		return failed(name, &ProtocolError{Step: "authorization", Reason: "request token mismatch"}), nil
	}
	session.Verifier = q.Get("oauth_verifier")
	if session.Verifier == "" {
		return failed(name, &ProtocolError{Step: "authorization", Reason: "missing oauth_verifier"}), nil
	}
	if ctx.Err() != nil {
		return cancelled(name), nil
	}

	resp := &authstate.AuthorizationResponse{
		Request: authstate.AuthorizationRequest{
			Provider: name,
			Config: authstate.ServiceConfig{
				AuthorizationEndpoint: authEndpoint.String(),
				TokenEndpoint:         f.client.AccessTokenURL(),
			},
			ClientID:             f.cfg.ClientID,
			RedirectURI:          f.cfg.RedirectURI.String(),
			Scope:                f.cfg.Scope,
			AdditionalParameters: map[string]string{"oauth_token": session.RequestToken},
		},
		AdditionalParameters: map[string]string{"oauth_verifier": session.Verifier},
	}
	if _, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
		return r.store.UpdateAfterAuthorization(ctx, resp, nil)
	}); err != nil {
		return Outcome{}, err
	}

	r.transition(ctx, name, AccessTokenRequested)
	at, err := call(ctx, r, "access_token", func(ctx context.Context) (oauth1.AccessToken, error) {
		return f.client.AccessToken(ctx, rt, session.Verifier)
	})
	if ctx.Err() != nil {
		return cancelled(name), nil
	}
	if err != nil {
		return f.accessTokenFailed(ctx, r, err)
	}
	session.AccessToken = at.Token
	session.AccessTokenSecret = at.Secret

	extra := map[string]string{}
	if at.UserID != "" {
		extra["user_id"] = at.UserID
	}
	if at.ScreenName != "" {
		extra["screen_name"] = at.ScreenName
	}
	st, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
		return r.store.UpdateAfterTokenResponse(ctx, &authstate.TokenResponse{
			AccessToken:          session.AccessToken,
			TokenSecret:          session.AccessTokenSecret,
			TokenType:            "OAuth1",
			AdditionalParameters: extra,
		}, nil)
	})
	if err != nil {
		return Outcome{}, err
	}
	return granted(name, st), nil
}

// accessTokenFailed handles a failed access-token leg. An explicit rejection
// of the verifier is recorded as a token error; anything else leaves the
// store alone.
func (f *OAuth1Flow) accessTokenFailed(ctx context.Context, r *runner, err error) (Outcome, error) {
	name := f.cfg.Provider

	var protoErr *oauth1.ProtocolError
	if !errors.As(err, &protoErr) || protoErr.StatusCode != http.StatusUnauthorized {
		return failed(name, classifyOAuth1Error("access_token", err)), nil
	}

	authErr := &authstate.AuthError{
		Kind:        authstate.ErrorKindToken,
		Grant:       authstate.GrantOAuth1AccessToken,
		Code:        "access_denied",
		Description: protoErr.Body,
	}
	if _, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
		return r.store.UpdateAfterTokenResponse(ctx, nil, authErr)
	}); err != nil {
		return Outcome{}, err
	}
	return failed(name, authErr), nil
}

func classifyOAuth1Error(step string, err error) error {
	var netErr *oauth1.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{Step: step, Err: err}
	}
	var protoErr *oauth1.ProtocolError
	if errors.As(err, &protoErr) {
		return &ProtocolError{Step: step, Reason: protoErr.Reason, Err: err}
	}
	return &ProtocolError{Step: step, Reason: "unexpected failure", Err: err}
}
