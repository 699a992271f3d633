// Package kvstore provides persistent string key-value storage for OAuth client state.
//
// Supports several backends with different security and deployment tradeoffs:
//   - Memory: Process-local storage, lost on exit (tests, ephemeral sessions)
//   - File: Single JSON document with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared storage for several processes on one origin
//   - SQLite: Local database file
//
// Refreshing tokens requires writable storage (everything except env).
// Backends that can write several keys at once implement BatchSetter.
package kvstore
