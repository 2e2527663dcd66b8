// Package journal subscribes to the live log stream of a service unit.
//
// The Journald implementation follows `journalctl -f` output for the unit,
// exposing it as a channel of lines that stays open until the subscription
// is explicitly closed.
package journal
