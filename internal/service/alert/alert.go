package alert

import "context"

// Severity classifies notifications for formatting and operator attention.
type Severity int

const (
	// SeverityInfo reports a successful or uneventful run.
	SeverityInfo Severity = iota
	// SeverityError reports an aborted run with the service untouched.
	SeverityError
	// SeverityCritical reports a failure that may have left the service
	// degraded or down. This is the most visible class of alert.
	SeverityCritical
)

// String returns the label rendered in alert messages.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// Notifier delivers operator-facing notifications. Delivery is best-effort;
// callers log failures but never abort a run over them.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string) error
}

// Nop discards notifications. Used when no webhook is configured.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(_ context.Context, _ Severity, _ string) error {
	return nil
}
