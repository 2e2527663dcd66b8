// Package release orders upstream release identifiers.
//
// A release identifier is an opaque tag that usually embeds an ordered
// "<major>.<minor>" version behind a known literal prefix. The Comparator
// extracts that pair and provides a total order over parseable identifiers;
// tags without an embedded version compare only by string equality.
package release
