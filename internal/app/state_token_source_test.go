package app

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/blobstore"
	"github.com/florianilch/sociallogin/internal/flow"
	"github.com/florianilch/sociallogin/internal/provider"
)

func newTestStore(t *testing.T) *authstate.Store {
	t.Helper()
	blobs, err := blobstore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store, err := authstate.NewStore(blobs)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStateTokenSource(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		seed        *authstate.State
		refreshed   *authstate.TokenResponse
		refreshErr  error
		wantToken   string
		wantCalls   int32
		wantFailure bool
	}{
		{
			name:      "fresh token served from store",
			seed:      authorizedState("at-1", now.Add(time.Hour)),
			wantToken: "at-1",
		},
		{
			name:      "token without expiry never refreshed",
			seed:      authorizedState("at-1", time.Time{}),
			wantToken: "at-1",
		},
		{
			name:      "expired token refreshed",
			seed:      authorizedState("at-1", now.Add(-time.Minute)),
			refreshed: &authstate.TokenResponse{AccessToken: "at-2", Expiry: now.Add(time.Hour)},
			wantToken: "at-2",
			wantCalls: 1,
		},
		{
			name:        "refresh denied",
			seed:        authorizedState("at-1", now.Add(-time.Minute)),
			wantCalls:   1,
			wantFailure: true,
		},
		{
			name:        "other provider",
			seed:        &authstate.State{Provider: provider.Facebook, LastTokenResponse: &authstate.TokenResponse{AccessToken: "fb"}},
			wantCalls:   1,
			wantFailure: true,
		},
		{
			name:        "refresh returns expired token",
			seed:        authorizedState("at-1", now.Add(-time.Minute)),
			refreshed:   &authstate.TokenResponse{AccessToken: "at-2", Expiry: now.Add(-time.Second)},
			wantCalls:   1,
			wantFailure: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			if _, err := store.Replace(ctx, tt.seed); err != nil {
				t.Fatalf("Replace: %v", err)
			}

			var calls atomic.Int32
			src, err := NewStateTokenSource(provider.Google, store, func(ctx context.Context) (flow.Outcome, error) {
				calls.Add(1)
				if tt.refreshed == nil {
					return flow.Outcome{Status: flow.Failed, Provider: provider.Google, Err: flow.ErrNotAuthorized}, nil
				}
				if _, err := store.UpdateAfterTokenResponse(ctx, tt.refreshed, nil); err != nil {
					return flow.Outcome{}, err
				}
				return flow.Outcome{Status: flow.Granted, Provider: provider.Google}, nil
			})
			if err != nil {
				t.Fatalf("NewStateTokenSource: %v", err)
			}
			src.now = func() time.Time { return now }

			tok, err := src.Token()
			if tt.wantFailure {
				if err == nil {
					t.Fatalf("Token() = %+v, want error", tok)
				}
			} else {
				if err != nil {
					t.Fatalf("Token: %v", err)
				}
				if tok.AccessToken != tt.wantToken {
					t.Errorf("AccessToken = %q, want %q", tok.AccessToken, tt.wantToken)
				}
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("refresh calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestStateTokenSourceConcurrentRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	if _, err := store.Replace(ctx, authorizedState("at-1", now.Add(-time.Minute))); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	var calls atomic.Int32
	src, err := NewStateTokenSource(provider.Google, store, func(ctx context.Context) (flow.Outcome, error) {
		calls.Add(1)
		_, err := store.UpdateAfterTokenResponse(ctx, &authstate.TokenResponse{AccessToken: "at-2", Expiry: now.Add(time.Hour)}, nil)
		return flow.Outcome{Status: flow.Granted}, err
	})
	if err != nil {
		t.Fatalf("NewStateTokenSource: %v", err)
	}
	src.now = func() time.Time { return now }

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := src.Token()
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			if tok.AccessToken != "at-2" {
				t.Errorf("AccessToken = %q", tok.AccessToken)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestNewStateTokenSourceValidation(t *testing.T) {
	if _, err := NewStateTokenSource(provider.Google, nil, func(context.Context) (flow.Outcome, error) { return flow.Outcome{}, nil }); err == nil {
		t.Error("accepted nil store")
	}
	if _, err := NewStateTokenSource(provider.Google, newTestStore(t), nil); err == nil {
		t.Error("accepted nil refresh")
	}
}
