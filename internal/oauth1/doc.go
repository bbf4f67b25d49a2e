// Package oauth1 implements the client side of the OAuth1.0a three-legged flow
// used by Twitter.
//
// The signer follows RFC 5849 with HMAC-SHA1:
//
//	signer := oauth1.NewSigner(consumerKey, consumerSecret, callbackURL)
//	header := signer.Sign("POST", endpoint, map[string]string{"oauth_token": token}, tokenSecret)
//
// Client wraps the request-token and access-token calls. Response bodies are
// form-encoded and parsed structurally with url.ParseQuery.
package oauth1
