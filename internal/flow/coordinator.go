package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/provider"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers a function called on every phase transition. It runs
// on the goroutine driving the attempt and must not block.
func WithObserver(observer func(Transition)) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Coordinator) {
		c.deps.HTTPClient = httpClient
	}
}

// WithTwitterBaseURL points the OAuth1 flow at a different API root.
func WithTwitterBaseURL(baseURL string) Option {
	return func(c *Coordinator) {
		c.deps.TwitterBaseURL = baseURL
	}
}

// WithRedirectCheck verifies, before any network I/O, that the configured
// redirect URI is one the caller can receive.
func WithRedirectCheck(check func(*url.URL) error) Option {
	return func(c *Coordinator) {
		c.deps.RedirectCheck = check
	}
}

// WithIDTokenVerifier replaces issuer discovery with a fixed verifier.
func WithIDTokenVerifier(v IDTokenVerifier) Option {
	return func(c *Coordinator) {
		c.idVerifier = v
	}
}

// Coordinator runs login attempts against configured providers and records
// their results in the auth state store.
type Coordinator struct {
	store      *authstate.Store
	authorizer Authorizer
	deps       Deps
	observer   func(Transition)
	idVerifier IDTokenVerifier

	worker *worker
}

// New creates a Coordinator and starts its background worker. Call Close to
// stop it.
func New(store *authstate.Store, authorizer Authorizer, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("missing auth state store")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("missing authorizer")
	}

	c := &Coordinator{
		store:      store,
		authorizer: authorizer,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.worker = newWorker()
	return c, nil
}

// Login runs one login attempt for cfg. An invalid configuration is returned
// as a *provider.ConfigurationError before any network I/O and a failed state
// write as a *authstate.StorageError. Every other ending is an Outcome.
func (c *Coordinator) Login(ctx context.Context, cfg provider.Config) (Outcome, error) {
	f, err := NewFlow(cfg, c.deps)
	if err != nil {
		return Outcome{}, err
	}
	return c.Run(ctx, f)
}

// Run drives a prepared flow to completion.
func (c *Coordinator) Run(ctx context.Context, f Flow) (Outcome, error) {
	return c.attempt(ctx, "flow.Login", f, func(ctx context.Context, r *runner) (Outcome, error) {
		return f.run(ctx, r)
	})
}

// Refresh redeems the stored refresh token for cfg's provider. A rejected
// refresh is recorded in the state but the previous credentials stay usable.
func (c *Coordinator) Refresh(ctx context.Context, cfg provider.Config) (Outcome, error) {
	f, err := NewFlow(cfg, c.deps)
	if err != nil {
		return Outcome{}, err
	}

	switch f := f.(type) {
	case *OAuth2Flow:
		return c.attempt(ctx, "flow.Refresh", f, f.refresh)
	case *OAuth1Flow:
		return Outcome{}, fmt.Errorf("%s: %w", f.Provider(), ErrRefreshUnsupported)
	}
	return Outcome{}, fmt.Errorf("unknown flow %T", f)
}

// Close stops the background worker after the task in progress.
func (c *Coordinator) Close() error {
	c.worker.stop()
	return nil
}

func (c *Coordinator) attempt(ctx context.Context, spanName string, f Flow, run func(context.Context, *runner) (Outcome, error)) (Outcome, error) {
	name := f.Provider()
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("provider", string(name))))
	defer span.End()

	r := &runner{
		store:      c.store,
		authorizer: c.authorizer,
		worker:     c.worker,
		observer:   c.observer,
		verifier:   c.verifierFor,
	}

	outcome, err := run(ctx, r)
	r.transition(ctx, name, Completed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt aborted")
		slog.ErrorContext(ctx, "auth flow aborted", "provider", name, "error", err)
		return Outcome{}, err
	}

	span.SetAttributes(attribute.String("outcome", outcome.Status.String()))
	switch outcome.Status {
	case Failed:
		span.SetStatus(codes.Error, outcome.Err.Error())
		slog.WarnContext(ctx, "auth flow failed", "provider", name, "error", outcome.Err)
	default:
		slog.InfoContext(ctx, "auth flow completed", "provider", name, "outcome", outcome.Status)
	}
	return outcome, nil
}

func (c *Coordinator) verifierFor(ctx context.Context, cfg provider.Config) (IDTokenVerifier, error) {
	if c.idVerifier != nil {
		return c.idVerifier, nil
	}
	if cfg.IssuerURI == "" {
		return nil, nil
	}
	v, err := NewOIDCVerifier(ctx, cfg.IssuerURI, cfg.ClientID, c.deps.HTTPClient)
	if err != nil {
		return nil, err
	}
	return v, nil
}
