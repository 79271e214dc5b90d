package sync

import (
	"fmt"
	"time"
)

// ChangePolicy decides whether a remote modification time warrants rewriting
// the local copy.
type ChangePolicy interface {
	Changed(local, remote time.Time) bool
}

// DayGranularity treats timestamps on the same UTC calendar day as unchanged.
// Providers bump modification times on metadata-only touches; this keeps such
// churn from rewriting records.
type DayGranularity struct{}

func (DayGranularity) Changed(local, remote time.Time) bool {
	ly, lm, ld := local.UTC().Date()
	ry, rm, rd := remote.UTC().Date()
	return ly != ry || lm != rm || ld != rd
}

// ExactTimestamp reports any difference in the instant.
type ExactTimestamp struct{}

func (ExactTimestamp) Changed(local, remote time.Time) bool {
	return !local.Equal(remote)
}

// PolicyByName maps a config value to a policy.
func PolicyByName(name string) (ChangePolicy, error) {
	switch name {
	case "", "day":
		return DayGranularity{}, nil
	case "exact":
		return ExactTimestamp{}, nil
	default:
		return nil, fmt.Errorf("unknown change detection policy %q", name)
	}
}
