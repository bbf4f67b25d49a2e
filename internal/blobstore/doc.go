// Package blobstore provides the durable single-slot backends that hold the
// serialized authorization state.
//
// Each store owns exactly one value under a fixed key:
//   - File: local file with atomic writes and owner-only permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - SQLite: one row in a key/value table, for hosts without a keyring
//   - Env: read-only environment variable access, used for pre-shared secrets
//
// Authorization state requires writable storage (file, keyring or sqlite).
package blobstore
