// Package state implements persistence for the install state.
//
// The FileStore stores the last installed release identifier as plain text
// on disk and exposes the Store interface the orchestrator depends on. The
// value is read once per run and written at most once, only after the binary
// swap and restart completed.
package state
