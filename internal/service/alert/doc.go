// Package alert delivers run outcomes to operators.
//
// The Discord notifier posts severity-tagged messages to an incoming
// webhook; the Nop notifier is substituted when no webhook is configured.
// Failures during and after service disruption are sent as critical alerts
// because nothing remediates them automatically.
package alert
