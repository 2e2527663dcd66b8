// Package artifact downloads release binaries into local storage.
//
// The HTTPFetcher resumes interrupted downloads via Range requests and
// retries transient failures with exponential backoff, so a flaky link does
// not force re-downloading a large binary from scratch.
package artifact
