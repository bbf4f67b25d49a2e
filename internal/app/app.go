package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/blobstore"
	"github.com/florianilch/sociallogin/internal/callback"
	"github.com/florianilch/sociallogin/internal/flow"
	"github.com/florianilch/sociallogin/internal/provider"
)

// Terminal is where interactive logins talk to the user.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// App wires configuration, the auth state store and the login flows.
type App struct {
	cfg        *Config
	blobs      blobstore.Store
	store      *authstate.Store
	httpClient *http.Client
}

// New creates a new App instance. Storage is opened but not read.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	blobs, err := cfg.Storage.NewBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open state storage: %w", err)
	}

	// I/O deferred to first Current() call
	store, err := authstate.NewStore(blobs)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth state store: %w", err)
	}

	return &App{
		cfg:        cfg,
		blobs:      blobs,
		store:      store,
		httpClient: &http.Client{Timeout: cfg.HTTP.Timeout},
	}, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if c, ok := a.blobs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Status returns the current auth state.
func (a *App) Status(ctx context.Context) *authstate.State {
	return a.store.Current(ctx)
}

// Reset discards all persisted authorization data.
func (a *App) Reset(ctx context.Context) error {
	if _, err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	return nil
}

// Refresh redeems the stored refresh token for the named provider.
func (a *App) Refresh(ctx context.Context, name string) (flow.Outcome, error) {
	cfg, err := a.cfg.ProviderConfig(ctx, name)
	if err != nil {
		return flow.Outcome{}, err
	}

	coordinator, err := a.coordinator(nonInteractive)
	if err != nil {
		return flow.Outcome{}, err
	}
	defer func() { _ = coordinator.Close() }()

	return coordinator.Refresh(ctx, cfg)
}

// Login runs an interactive login for the named provider. Loopback redirect
// URIs are received by a local HTTP server; any other redirect is pasted by
// the user.
func (a *App) Login(ctx context.Context, name string, term Terminal) (flow.Outcome, error) {
	cfg, err := a.cfg.ProviderConfig(ctx, name)
	if err != nil {
		return flow.Outcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Login.Timeout)
	defer cancel()

	if !callback.IsLoopback(cfg.RedirectURI) {
		return a.login(ctx, cfg, callback.NewPrompt(cfg.RedirectURI, term.In, term.Out))
	}
	return a.loginWithServer(ctx, cfg, term)
}

// loginWithServer runs the redirect receiver next to the flow. Uses errgroup
// so a receiver failure cancels the flow.
func (a *App) loginWithServer(ctx context.Context, cfg provider.Config, term Terminal) (flow.Outcome, error) {
	server, err := callback.NewServer(cfg.RedirectURI, callback.PrintOpener{W: term.Out})
	if err != nil {
		return flow.Outcome{}, err
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := server.Address()
	slog.DebugContext(gCtx, "starting redirect receiver", "address", address)
	serverErrCh, err := server.Start(gCtx, address)
	if err != nil {
		return flow.Outcome{}, fmt.Errorf("redirect receiver startup failed: %w", err)
	}

	monitorCtx, stopMonitor := context.WithCancel(gCtx)
	defer stopMonitor()

	var outcome flow.Outcome
	g.Go(func() error {
		defer stopMonitor()
		var err error
		outcome, err = a.login(gCtx, cfg, server, flow.WithRedirectCheck(server.CheckRedirect))
		return err
	})

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "redirect receiver runtime error", "error", err)
				return fmt.Errorf("redirect receiver: %w", err)
			}
			return nil
		case <-monitorCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, runtimeErr)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "redirect receiver shutdown failed", "error", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return outcome, errors.Join(errs...)
	}
	return outcome, nil
}

func (a *App) login(ctx context.Context, cfg provider.Config, authorizer flow.Authorizer, opts ...flow.Option) (flow.Outcome, error) {
	coordinator, err := a.coordinator(authorizer, opts...)
	if err != nil {
		return flow.Outcome{}, err
	}
	defer func() { _ = coordinator.Close() }()

	return coordinator.Login(ctx, cfg)
}

func (a *App) coordinator(authorizer flow.Authorizer, opts ...flow.Option) (*flow.Coordinator, error) {
	opts = append([]flow.Option{flow.WithHTTPClient(a.httpClient)}, opts...)
	return flow.New(a.store, authorizer, opts...)
}

// nonInteractive declines every authorization request.
var nonInteractive = flow.AuthorizerFunc(func(context.Context, flow.AuthorizationRequest) (flow.Callback, error) {
	return flow.Callback{}, flow.ErrCancelled
})
