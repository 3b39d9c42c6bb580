package domain

import (
	"sort"
	"time"
)

// SkipReason explains why selection produced no eligible post.
type SkipReason string

const (
	SkipNoCandidates SkipReason = "no candidates"
	SkipAllAge       SkipReason = "all filtered: age"
	SkipAllDuplicate SkipReason = "all filtered: duplicate"
)

// SelectEligible picks the single post worth engaging with from a candidate
// window. Candidates older than maxAgeDays are dropped first (maxAgeDays <= 0
// disables the age filter), then candidates already present in the ledger.
// Survivors are sorted by PublishedAt descending and the newest is returned.
//
// The function is pure: the clock and the ledger lookup are injected, never
// read from ambient state. A non-nil error from hasRecorded aborts selection.
func SelectEligible(candidates []PostCandidate, now time.Time, maxAgeDays int, hasRecorded func(unitID string) (bool, error)) (*PostCandidate, SkipReason, error) {
	if len(candidates) == 0 {
		return nil, SkipNoCandidates, nil
	}

	// Age filter runs first so duplicate lookups are only paid for posts
	// that are still fresh enough to matter.
	fresh := make([]PostCandidate, 0, len(candidates))
	for _, c := range candidates {
		if maxAgeDays > 0 {
			age := now.Sub(c.PublishedAt)
			if age > time.Duration(maxAgeDays)*24*time.Hour {
				continue
			}
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return nil, SkipAllAge, nil
	}

	// Pinned status is irrelevant here: a pinned post that was already
	// engaged with stays ineligible forever.
	eligible := make([]PostCandidate, 0, len(fresh))
	for _, c := range fresh {
		recorded, err := hasRecorded(c.UnitID)
		if err != nil {
			return nil, "", err
		}
		if recorded {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil, SkipAllDuplicate, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].PublishedAt.After(eligible[j].PublishedAt)
	})

	selected := eligible[0]
	return &selected, "", nil
}

// CaptionWithinBounds applies the caption-length gate: lengths below min or
// above max are rejected, both bounds inclusive.
func CaptionWithinBounds(length, min, max int) bool {
	return length >= min && length <= max
}
