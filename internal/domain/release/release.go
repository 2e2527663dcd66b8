package release

import (
	"errors"
	"fmt"
	"regexp"

	goversion "github.com/hashicorp/go-version"
)

// Ordering is the result of comparing two release identifiers.
type Ordering int

const (
	// Incomparable means at least one identifier does not encode a version.
	Incomparable Ordering = iota
	// Older means the candidate orders before the baseline.
	Older
	// Same means both identifiers name the same release.
	Same
	// Newer means the candidate orders after the baseline.
	Newer
)

// String returns a human-readable name for the ordering.
func (o Ordering) String() string {
	switch o {
	case Older:
		return "older"
	case Same:
		return "same"
	case Newer:
		return "newer"
	default:
		return "incomparable"
	}
}

// ErrUnparseable is returned when a non-empty release identifier does not
// embed a version and differs from the identifier it is compared against.
var ErrUnparseable = errors.New("release identifier does not encode a version")

// Comparator orders release identifiers that embed a "<prefix><major>.<minor>"
// version somewhere in the tag. Tags are not guaranteed to be purely numeric
// strings, so the version is extracted structurally before ordering; plain
// substring comparison would order "v10.0" before "v9.0".
type Comparator struct {
	// pattern captures the major and minor components after the literal prefix.
	pattern *regexp.Regexp
}

// NewComparator builds a comparator for identifiers carrying the given
// literal prefix before the embedded version.
func NewComparator(prefix string) *Comparator {
	return &Comparator{
		pattern: regexp.MustCompile(regexp.QuoteMeta(prefix) + `(\d+)\.(\d+)`),
	}
}

// Compare decides how the candidate release relates to the baseline.
//
// An empty baseline means nothing is installed yet, so any candidate is
// Newer. Identical strings are Same even when neither embeds a version.
// Otherwise both identifiers must parse; a failure yields Incomparable
// together with ErrUnparseable, and the caller decides whether to abort
// or skip.
func (c *Comparator) Compare(candidate, baseline string) (Ordering, error) {
	if baseline == "" {
		return Newer, nil
	}

	if candidate == baseline {
		return Same, nil
	}

	candidateVersion, ok := c.extract(candidate)
	if !ok {
		return Incomparable, fmt.Errorf("candidate %q: %w", candidate, ErrUnparseable)
	}

	baselineVersion, ok := c.extract(baseline)
	if !ok {
		return Incomparable, fmt.Errorf("baseline %q: %w", baseline, ErrUnparseable)
	}

	switch candidateVersion.Compare(baselineVersion) {
	case 0:
		return Same, nil
	case 1:
		return Newer, nil
	default:
		return Older, nil
	}
}

// extract pulls the embedded (major, minor) pair out of an identifier.
func (c *Comparator) extract(identifier string) (*goversion.Version, bool) {
	match := c.pattern.FindStringSubmatch(identifier)
	if match == nil {
		return nil, false
	}

	parsed, err := goversion.NewVersion(match[1] + "." + match[2])
	if err != nil {
		return nil, false
	}

	return parsed, true
}
