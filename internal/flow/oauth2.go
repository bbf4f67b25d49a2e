package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/provider"
	"github.com/florianilch/sociallogin/internal/tokensource"
)

// OAuth2Flow is the authorization code grant with PKCE used by Google and
// Facebook.
type OAuth2Flow struct {
	cfg    provider.Config
	client *tokensource.Client
}

// Provider returns the provider this flow logs in to.
func (f *OAuth2Flow) Provider() provider.Name {
	return f.cfg.Provider
}

func (f *OAuth2Flow) run(ctx context.Context, r *runner) (Outcome, error) {
	name := f.cfg.Provider
	r.transition(ctx, name, ConfigResolved)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	request := authstate.AuthorizationRequest{
		Provider:     name,
		Config:       f.serviceConfig(),
		ClientID:     f.cfg.ClientID,
		RedirectURI:  f.cfg.RedirectURI.String(),
		Scope:        f.cfg.Scope,
		State:        state,
		CodeVerifier: verifier,
	}

	r.transition(ctx, name, AuthorizationRequested)
	cb, isCancelled, err := r.authorize(ctx, AuthorizationRequest{
		Provider:    name,
		URL:         f.client.AuthCodeURL(state, verifier),
		RedirectURI: f.cfg.RedirectURI,
	})
	if isCancelled {
		return cancelled(name), nil
	}
	if err != nil {
		return failed(name, err), nil
	}

	r.transition(ctx, name, AuthorizationReceived)
	q := cb.Query
	if code := q.Get("error"); code != "" {
		return failed(name, &authstate.AuthError{
			Kind:        authstate.ErrorKindAuthorization,
			Code:        code,
			Description: q.Get("error_description"),
		}), nil
	}
	if q.Get("state") != state {
		return failed(name, &ProtocolError{Step: "authorization", Reason: "state mismatch"}), nil
	}
	code := q.Get("code")
	if code == "" {
		return failed(name, &ProtocolError{Step: "authorization", Reason: "missing code"}), nil
	}
	if ctx.Err() != nil {
		return cancelled(name), nil
	}

	resp := &authstate.AuthorizationResponse{
		Request: request,
		Code:    code,
		State:   q.Get("state"),
		Scope:   q.Get("scope"),
	}
	if _, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
		return r.store.UpdateAfterAuthorization(ctx, resp, nil)
	}); err != nil {
		return Outcome{}, err
	}

	r.transition(ctx, name, TokenExchangeRequested)
	tok, err := call(ctx, r, "token_exchange", func(ctx context.Context) (*oauth2.Token, error) {
		return f.client.Exchange(ctx, code, verifier)
	})
	return f.complete(ctx, r, authstate.GrantAuthorizationCode, tok, err)
}

// refresh redeems the stored refresh token. A rejected refresh is recorded
// without dropping the credentials already held.
func (f *OAuth2Flow) refresh(ctx context.Context, r *runner) (Outcome, error) {
	name := f.cfg.Provider
	st, err := await(ctx, r.worker, func(ctx context.Context) (*authstate.State, error) {
		return r.store.Current(ctx), nil
	})
	if ctx.Err() != nil {
		return cancelled(name), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if st.Provider != name || st.RefreshTokenValue() == "" {
		return failed(name, ErrNotAuthorized), nil
	}

	r.transition(ctx, name, TokenExchangeRequested)
	refreshToken := st.RefreshTokenValue()
	tok, err := call(ctx, r, "token_refresh", func(ctx context.Context) (*oauth2.Token, error) {
		return f.client.Refresh(ctx, refreshToken)
	})
	return f.complete(ctx, r, authstate.GrantRefreshToken, tok, err)
}

// complete records the token endpoint result for grant.
func (f *OAuth2Flow) complete(ctx context.Context, r *runner, grant string, tok *oauth2.Token, err error) (Outcome, error) {
	name := f.cfg.Provider
	if ctx.Err() != nil {
		return cancelled(name), nil
	}
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if !errors.As(err, &retrieveErr) || retrieveErr.ErrorCode == "" {
			return failed(name, classifyTokenError(grant, err)), nil
		}
		authErr := &authstate.AuthError{
			Kind:        authstate.ErrorKindToken,
			Grant:       grant,
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
		if _, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
			return r.store.UpdateAfterTokenResponse(ctx, nil, authErr)
		}); err != nil {
			return Outcome{}, err
		}
		return failed(name, authErr), nil
	}

	resp := tokenResponse(tok)
	if err := r.verifyIDToken(ctx, f.cfg, resp.IDToken); err != nil {
		if ctx.Err() != nil {
			return cancelled(name), nil
		}
		return failed(name, err), nil
	}

	st, err := r.persist(ctx, func(ctx context.Context) (*authstate.State, error) {
		return r.store.UpdateAfterTokenResponse(ctx, resp, nil)
	})
	if err != nil {
		return Outcome{}, err
	}
	return granted(name, st), nil
}

func (f *OAuth2Flow) serviceConfig() authstate.ServiceConfig {
	return authstate.ServiceConfig{
		AuthorizationEndpoint: f.cfg.AuthEndpoint.String(),
		TokenEndpoint:         f.cfg.TokenEndpoint.String(),
	}
}

func classifyTokenError(grant string, err error) error {
	step := "token_exchange"
	if grant == authstate.GrantRefreshToken {
		step = "token_refresh"
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		reason := "unexpected response"
		if retrieveErr.Response != nil {
			reason = fmt.Sprintf("unexpected status %d", retrieveErr.Response.StatusCode)
		}
		return &ProtocolError{Step: step, Reason: reason, Err: err}
	}
	return transportOr(&ProtocolError{Step: step, Reason: "invalid token response", Err: err}, step, err)
}

func tokenResponse(tok *oauth2.Token) *authstate.TokenResponse {
	idToken, _ := tok.Extra("id_token").(string)
	scope, _ := tok.Extra("scope").(string)
	return &authstate.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.Type(),
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		Scope:        scope,
		Expiry:       tok.Expiry,
	}
}
