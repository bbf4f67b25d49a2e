package authstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/florianilch/sociallogin/internal/blobstore"
)

// Store is the single authoritative holder of the current State, backed by a
// durable single-slot blob store.
type Store struct {
	blobs blobstore.Store

	current atomic.Pointer[State]

	// ioMu serializes calls into the blob store.
	ioMu sync.Mutex
	// updateMu serializes read-modify-write sequences so the cache always
	// matches the last durable write.
	updateMu sync.Mutex
}

// NewStore creates a Store. No I/O is performed until the first Current call.
func NewStore(blobs blobstore.Store) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("missing blob store")
	}
	return &Store{blobs: blobs}, nil
}

// Current returns the current state, loading it from durable storage on first
// use. A missing or corrupted blob yields an empty state. When several callers
// race to load, one value wins and all of them observe it. A failed read is
// not cached, so the next call retries.
func (s *Store) Current(ctx context.Context) *State {
	// Hot path: lock-free atomic read
	if st := s.current.Load(); st != nil {
		return st
	}

	// Every caller must agree on the published value, cancelled or not
	loaded, ok := s.read(context.WithoutCancel(ctx))
	if !ok {
		return loaded
	}
	if s.current.CompareAndSwap(nil, loaded) {
		return loaded
	}
	return s.current.Load()
}

// Replace persists state and then publishes it as current. If the write fails
// the previous state stays current and a *StorageError is returned.
func (s *Store) Replace(ctx context.Context, state *State) (*State, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	return s.replaceLocked(ctx, state)
}

// UpdateAfterAuthorization applies an authorization result to the current state.
func (s *Store) UpdateAfterAuthorization(ctx context.Context, resp *AuthorizationResponse, authErr *AuthError) (*State, error) {
	return s.update(ctx, func(cur *State) *State {
		return cur.WithAuthorization(resp, authErr)
	})
}

// UpdateAfterTokenResponse applies a token endpoint result to the current state.
func (s *Store) UpdateAfterTokenResponse(ctx context.Context, resp *TokenResponse, authErr *AuthError) (*State, error) {
	return s.update(ctx, func(cur *State) *State {
		return cur.WithTokenResponse(resp, authErr)
	})
}

// UpdateAfterRegistration applies a registration result. A registration error
// leaves the state untouched and nothing is written.
func (s *Store) UpdateAfterRegistration(ctx context.Context, resp *RegistrationResponse, authErr *AuthError) (*State, error) {
	if authErr != nil {
		return s.Current(ctx), nil
	}
	return s.update(ctx, func(cur *State) *State {
		return cur.WithRegistration(resp)
	})
}

// Reset persists and publishes an empty state.
func (s *Store) Reset(ctx context.Context) (*State, error) {
	return s.Replace(ctx, New())
}

func (s *Store) update(ctx context.Context, apply func(*State) *State) (*State, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	return s.replaceLocked(ctx, apply(s.Current(ctx)))
}

func (s *Store) replaceLocked(ctx context.Context, state *State) (*State, error) {
	if state == nil {
		state = New()
	}
	if err := s.write(ctx, state); err != nil {
		return nil, err
	}
	s.current.Store(state)
	return state, nil
}

// read loads the persisted state. ok is false when the backend could not be
// read and the empty result must not be published.
func (s *Store) read(ctx context.Context) (state *State, ok bool) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	// A concurrent update may have published while we waited for the lock
	if st := s.current.Load(); st != nil {
		return st, true
	}

	data, err := s.blobs.Read(ctx)
	if errors.Is(err, blobstore.ErrNotFound) {
		return New(), true
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read auth state", "error", err)
		return New(), false
	}

	state, err = Deserialize(data)
	if err != nil {
		slog.WarnContext(ctx, "discarding corrupted auth state", "error", err)
		return New(), true
	}
	return state, true
}

func (s *Store) write(ctx context.Context, state *State) error {
	data, err := state.Serialize()
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.blobs.Write(ctx, data); err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	return nil
}
