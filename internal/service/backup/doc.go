// Package backup snapshots the service data directory into timestamped
// tar.gz archives before an update runs.
package backup
