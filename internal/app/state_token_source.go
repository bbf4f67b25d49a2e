package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/flow"
	"github.com/florianilch/sociallogin/internal/provider"
)

// RefreshFunc redeems the stored refresh token.
type RefreshFunc func(ctx context.Context) (flow.Outcome, error)

// StateTokenSource serves the access token held in the auth state store and
// refreshes it on demand once it has expired.
type StateTokenSource struct {
	provider provider.Name
	store    *authstate.Store
	refresh  RefreshFunc
	now      func() time.Time

	refreshMu sync.Mutex
}

// Compile-time check to ensure StateTokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*StateTokenSource)(nil)

// NewStateTokenSource creates a StateTokenSource for name.
// No I/O is performed until the first Token call.
func NewStateTokenSource(name provider.Name, store *authstate.Store, refresh RefreshFunc) (*StateTokenSource, error) {
	if store == nil {
		return nil, fmt.Errorf("missing auth state store")
	}
	if refresh == nil {
		return nil, fmt.Errorf("missing refresh function")
	}
	return &StateTokenSource{
		provider: name,
		store:    store,
		refresh:  refresh,
		now:      time.Now,
	}, nil
}

// Token returns a valid token, refreshing if necessary.
func (s *StateTokenSource) Token() (*oauth2.Token, error) {
	// oauth2.TokenSource.Token() has no context parameter (legacy interface limitation)
	ctx := context.Background()

	// Hot path: the store's cache is a lock-free atomic read
	if tok, ok := s.fresh(ctx); ok {
		return tok, nil
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	if tok, ok := s.fresh(ctx); ok {
		return tok, nil
	}

	outcome, err := s.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing %s token: %w", s.provider, err)
	}
	if outcome.Status != flow.Granted {
		return nil, fmt.Errorf("refreshing %s token: %s", s.provider, outcome.Message())
	}

	if tok, ok := s.fresh(ctx); ok {
		return tok, nil
	}
	return nil, fmt.Errorf("%s returned an already expired token", s.provider)
}

func (s *StateTokenSource) fresh(ctx context.Context) (*oauth2.Token, bool) {
	st := s.store.Current(ctx)
	if st.Provider != s.provider || st.NeedsTokenRefresh(s.now()) {
		return nil, false
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken(),
		RefreshToken: st.RefreshTokenValue(),
		Expiry:       st.AccessTokenExpiry(),
	}
	if st.LastTokenResponse != nil {
		tok.TokenType = st.LastTokenResponse.TokenType
	}
	return tok, true
}

// TokenSource returns a token source for the named provider backed by the
// persisted auth state.
func (a *App) TokenSource(ctx context.Context, name string) (oauth2.TokenSource, error) {
	cfg, err := a.cfg.ProviderConfig(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewStateTokenSource(cfg.Provider, a.store, func(ctx context.Context) (flow.Outcome, error) {
		return a.Refresh(ctx, name)
	})
}
