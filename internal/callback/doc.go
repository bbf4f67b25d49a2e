// Package callback receives the provider's authorization redirect and hands
// it to the login flow.
//
// Server is a loopback HTTP listener for redirect URIs like
// http://127.0.0.1:8765/oauth2redirect. Prompt covers redirect URIs the
// process cannot listen on: the user pastes the URL the browser was sent to.
// Both implement flow.Authorizer.
package callback
