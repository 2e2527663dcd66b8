// Package source resolves the latest published release of the tracked
// upstream repository via the GitHub releases API, with optional filtering
// to stable releases only.
package source
