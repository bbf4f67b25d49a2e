// Package tokensource talks to OAuth2 authorization servers: it builds PKCE
// authorization URLs, exchanges authorization codes and refreshes tokens.
//
// Provider differences come from the provider policy table. Facebook, for
// example, is a confidential client and needs its client secret in every token
// request; Google is a public client and relies on PKCE alone:
//
//	client, err := tokensource.New(cfg)
//	verifier := oauth2.GenerateVerifier() // Save for Exchange call
//	authURL := client.AuthCodeURL(state, verifier)
//	// After the user authorizes, the redirect carries ?code=...
//	token, err := client.Exchange(ctx, code, verifier)
//
// # Custom Base Transport
//
// Configure a custom base transport for token requests (e.g., for proxies or
// tests):
//
//	client, err := tokensource.New(cfg, tokensource.WithTransport(customTransport))
package tokensource
