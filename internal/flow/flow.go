package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/oauth1"
	"github.com/florianilch/sociallogin/internal/provider"
	"github.com/florianilch/sociallogin/internal/tokensource"
)

var tracer = otel.Tracer("github.com/florianilch/sociallogin/internal/flow")

// Flow is one protocol family's login state machine. The set of
// implementations is closed: *OAuth2Flow and *OAuth1Flow.
type Flow interface {
	Provider() provider.Name
	run(ctx context.Context, r *runner) (Outcome, error)
}

// Deps are the collaborators a Flow needs to reach the provider.
type Deps struct {
	// HTTPClient is used for every provider call. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// TwitterBaseURL overrides the OAuth1 REST API root.
	TwitterBaseURL string

	// RedirectCheck verifies that the redirect URI can be received.
	RedirectCheck func(*url.URL) error
}

// NewFlow validates cfg and builds the flow its provider's policy calls for.
// Every validation failure is a *provider.ConfigurationError.
func NewFlow(cfg provider.Config, deps Deps) (Flow, error) {
	var validateOpts []provider.ValidateOption
	if deps.RedirectCheck != nil {
		validateOpts = append(validateOpts, provider.WithRedirectCheck(deps.RedirectCheck))
	}
	if err := cfg.Validate(validateOpts...); err != nil {
		return nil, err
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	switch cfg.Policy().Protocol {
	case provider.OAuth2:
		var opts []tokensource.Option
		if httpClient.Transport != nil {
			opts = append(opts, tokensource.WithTransport(httpClient.Transport))
		}
		if httpClient.Timeout > 0 {
			opts = append(opts, tokensource.WithTimeout(httpClient.Timeout))
		}
		client, err := tokensource.New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		return &OAuth2Flow{cfg: cfg, client: client}, nil

	case provider.OAuth1:
		signer := oauth1.NewSigner(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI.String())
		clientOpts := []oauth1.ClientOption{oauth1.WithHTTPClient(httpClient)}
		if deps.TwitterBaseURL != "" {
			clientOpts = append(clientOpts, oauth1.WithBaseURL(deps.TwitterBaseURL))
		}
		client, err := oauth1.NewClient(signer, clientOpts...)
		if err != nil {
			return nil, err
		}
		return &OAuth1Flow{cfg: cfg, client: client}, nil
	}

	return nil, &provider.ConfigurationError{Provider: cfg.Provider, Field: "provider", Reason: "has no protocol policy"}
}

// Transition is reported to the observer on every phase change.
type Transition struct {
	Provider provider.Name
	Phase    Phase
}

// runner carries the coordinator's collaborators through one attempt.
type runner struct {
	store      *authstate.Store
	authorizer Authorizer
	worker     *worker
	observer   func(Transition)
	verifier   func(ctx context.Context, cfg provider.Config) (IDTokenVerifier, error)
}

func (r *runner) transition(ctx context.Context, name provider.Name, phase Phase) {
	slog.DebugContext(ctx, "auth flow transition", "provider", name, "phase", phase)
	trace.SpanFromContext(ctx).AddEvent(phase.String())
	if r.observer != nil {
		r.observer(Transition{Provider: name, Phase: phase})
	}
}

// call runs a network step on the worker inside its own span.
func call[T any](ctx context.Context, r *runner, step string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "flow."+step)
	defer span.End()

	v, err := await(ctx, r.worker, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, step+" failed")
	}
	return v, err
}

// persist applies a store update on the worker. Once submitted, the write is
// awaited even if ctx is cancelled so the caller knows whether it happened.
func (r *runner) persist(ctx context.Context, update func(ctx context.Context) (*authstate.State, error)) (*authstate.State, error) {
	return await(context.WithoutCancel(ctx), r.worker, update)
}

// authorize hands the request to the Authorizer. It reports cancelled when the
// user dismissed the UI or ctx is done.
func (r *runner) authorize(ctx context.Context, req AuthorizationRequest) (cb Callback, cancelled bool, err error) {
	ctx, span := tracer.Start(ctx, "flow.authorize", trace.WithAttributes(attribute.String("provider", string(req.Provider))))
	defer span.End()

	cb, err = r.authorizer.Authorize(ctx, req)
	if ctx.Err() != nil || errors.Is(err, ErrCancelled) {
		return Callback{}, true, nil
	}
	if err != nil {
		span.RecordError(err)
		return Callback{}, false, fmt.Errorf("authorization UI: %w", err)
	}
	return cb, false, nil
}

// verifyIDToken checks an ID token when the provider has an issuer configured.
func (r *runner) verifyIDToken(ctx context.Context, cfg provider.Config, rawIDToken string) error {
	if rawIDToken == "" || r.verifier == nil {
		return nil
	}
	_, err := call(ctx, r, "verify_id_token", func(ctx context.Context) (struct{}, error) {
		v, err := r.verifier(ctx, cfg)
		if err != nil || v == nil {
			return struct{}{}, err
		}
		return struct{}{}, v.Verify(ctx, rawIDToken)
	})
	if err != nil && ctx.Err() == nil {
		return transportOr(&ProtocolError{Step: "id_token", Reason: "verification failed", Err: err}, "id_token", err)
	}
	return err
}

// transportOr returns a *NetworkError when err is a transport failure and
// fallback otherwise.
func transportOr(fallback error, step string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{Step: step, Err: err}
	}
	return fallback
}
