package updater

// Outcome classifies how a single update run ended. Every non-success
// outcome is distinguishable so alerting can name the failure kind.
type Outcome int

const (
	// OutcomeUnknown means the run aborted before reaching a classified step.
	OutcomeUnknown Outcome = iota
	// OutcomeSuccess means the new release is installed, restarted, and live.
	OutcomeSuccess
	// OutcomeUpToDate means the latest release is already installed.
	OutcomeUpToDate
	// OutcomeNoEligibleRelease means the source offers nothing installable.
	OutcomeNoEligibleRelease
	// OutcomeDowngradeRejected means the candidate orders before the
	// installed release and was refused by policy.
	OutcomeDowngradeRejected
	// OutcomeFetchFailed means the artifact download failed before any
	// service disruption.
	OutcomeFetchFailed
	// OutcomeStopFailed means the service could not be stopped; the old
	// binary is still installed.
	OutcomeStopFailed
	// OutcomeStartFailed means the service manager reload or start failed
	// after the binary swap; the service may be down.
	OutcomeStartFailed
	// OutcomeHealthTimeout means the restarted service never showed traffic
	// within the health window. The new release is still recorded as
	// installed because the swap and restart did complete.
	OutcomeHealthTimeout
)

// String returns the outcome name used in logs and alerts.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeNoEligibleRelease:
		return "no-eligible-release"
	case OutcomeDowngradeRejected:
		return "downgrade-rejected"
	case OutcomeFetchFailed:
		return "fetch-failed"
	case OutcomeStopFailed:
		return "stop-failed"
	case OutcomeStartFailed:
		return "start-failed"
	case OutcomeHealthTimeout:
		return "health-timeout"
	default:
		return "unknown"
	}
}

// clean reports whether the outcome is a successful or uneventful run, i.e.
// the process should exit zero.
func (o Outcome) clean() bool {
	switch o {
	case OutcomeSuccess, OutcomeUpToDate, OutcomeNoEligibleRelease:
		return true
	default:
		return false
	}
}
