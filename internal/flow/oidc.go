package flow

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// IDTokenVerifier checks an OpenID Connect ID token returned by the token
// endpoint.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) error
}

// OIDCVerifier verifies ID tokens against an issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers issuer and returns a verifier for tokens issued to
// clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string, httpClient *http.Client) (*OIDCVerifier, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering issuer %s: %w", issuer, err)
	}
	return &OIDCVerifier{
		verifier: p.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify checks the token's signature, issuer, audience and expiry.
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) error {
	_, err := v.verifier.Verify(ctx, rawIDToken)
	return err
}
