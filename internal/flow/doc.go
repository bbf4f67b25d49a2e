// Package flow drives one end-to-end login attempt against a social identity
// provider and reports a single Outcome.
//
// Two protocol families are supported. Google and Facebook use the OAuth2
// authorization code grant with PKCE:
//
//	Idle -> ConfigResolved -> AuthorizationRequested -> AuthorizationReceived
//	     -> TokenExchangeRequested -> Completed
//
// Twitter uses the OAuth1.0a three-legged flow:
//
//	Idle -> RequestTokenRequested -> RequestTokenReceived -> AuthorizationRequested
//	     -> VerifierReceived -> AccessTokenRequested -> Completed
//
// Network calls and state persistence run on a single background worker owned
// by the Coordinator. The caller's goroutine drives the transitions and waits
// on the worker's results, so steps of one attempt never overlap.
//
// Cancellation is cooperative. Once the context is done or the Authorizer
// reports ErrCancelled, no further network call is issued and the attempt
// completes as Cancelled. A call already in flight may finish; its result is
// discarded.
//
// Configuration and storage failures are returned as errors. Provider
// rejections, protocol failures and network failures end the attempt with a
// Failed outcome and leave previously persisted credentials intact.
package flow
