// Package authstate holds the authorization state of the current provider
// session and the Store that owns it.
//
// A State is a value: once published by the Store it is never modified, and
// every update (authorization, token, registration, reset) produces a new
// State that is persisted before it becomes current.
//
//	store, _ := authstate.NewStore(blobs)
//	state := store.Current(ctx)
//	if !state.IsAuthorized() {
//		// start a login
//	}
//
// Store is safe for concurrent use. Reads are served from an atomically
// swapped cache; writes to the durable slot are serialized.
package authstate
