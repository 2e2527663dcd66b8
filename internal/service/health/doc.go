// Package health decides whether the managed service came back healthy
// after a restart.
//
// The Monitor tails the service's live log stream with a single background
// reader, extracts a numeric traffic counter from matching lines, and polls
// the latest value under a timeout. The first observation above zero means
// the service is live; a window with no positive sample is a timeout.
package health
