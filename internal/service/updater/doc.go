// Package updater sequences a single update-and-verify transaction.
//
// One run asks the release source for the latest tag, compares it against
// the recorded install state, and when it is newer: snapshots data
// (optionally), downloads the binary, stops the service, swaps the binary,
// restarts, and watches the service logs for a liveness signal. The recorded
// state advances only after the swap and restart completed. Aborts before
// the swap leave no irreversible side effect beyond a possibly stopped
// service or a downloaded artifact kept for retry; nothing after the swap is
// rolled back.
package updater
