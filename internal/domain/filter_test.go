package domain

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

// ageDays builds a candidate published the given fraction of days ago.
func ageDays(unitID string, days float64) PostCandidate {
	return PostCandidate{
		UnitID:      unitID,
		URL:         "https://www.instagram.com/p/" + unitID + "/",
		Kind:        ContentImage,
		PublishedAt: now.Add(-time.Duration(days * 24 * float64(time.Hour))),
	}
}

func neverRecorded(string) (bool, error) { return false, nil }

func recordedSet(ids ...string) func(string) (bool, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(unitID string) (bool, error) { return set[unitID], nil }
}

func TestSelectEligiblePicksNewestSurvivor(t *testing.T) {
	candidates := []PostCandidate{
		ageDays("a", 0.5),
		ageDays("b", 2),
		ageDays("c", 0.9),
		ageDays("d", 10),
	}

	selected, skip, err := SelectEligible(candidates, now, 1, neverRecorded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skip != "" {
		t.Fatalf("unexpected skip: %q", skip)
	}
	if selected.UnitID != "a" {
		t.Errorf("selected = %q, want a (newest eligible)", selected.UnitID)
	}
}

func TestSelectEligibleSkipsRecordedNewest(t *testing.T) {
	candidates := []PostCandidate{
		ageDays("a", 0.5),
		ageDays("b", 2),
		ageDays("c", 0.9),
		ageDays("d", 10),
	}

	selected, _, err := SelectEligible(candidates, now, 1, recordedSet("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected == nil || selected.UnitID != "c" {
		t.Errorf("selected = %+v, want c (next newest eligible)", selected)
	}
}

func TestSelectEligibleAllRecorded(t *testing.T) {
	candidates := []PostCandidate{
		ageDays("a", 0.5),
		ageDays("b", 2),
		ageDays("c", 0.9),
		ageDays("d", 10),
	}

	selected, skip, err := SelectEligible(candidates, now, 1, recordedSet("a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected != nil {
		t.Fatalf("selected = %+v, want none", selected)
	}
	if skip != SkipAllDuplicate {
		t.Errorf("skip = %q, want %q", skip, SkipAllDuplicate)
	}
}

func TestSelectEligibleNoCandidates(t *testing.T) {
	selected, skip, err := SelectEligible(nil, now, 1, neverRecorded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected != nil || skip != SkipNoCandidates {
		t.Errorf("got (%+v, %q), want (nil, %q)", selected, skip, SkipNoCandidates)
	}
}

func TestSelectEligibleAllTooOld(t *testing.T) {
	candidates := []PostCandidate{ageDays("a", 3), ageDays("b", 5)}

	selected, skip, err := SelectEligible(candidates, now, 1, neverRecorded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected != nil || skip != SkipAllAge {
		t.Errorf("got (%+v, %q), want (nil, %q)", selected, skip, SkipAllAge)
	}
}

func TestSelectEligibleAgeFilterDisabled(t *testing.T) {
	candidates := []PostCandidate{ageDays("old", 100), ageDays("older", 200)}

	selected, _, err := SelectEligible(candidates, now, 0, neverRecorded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected == nil || selected.UnitID != "old" {
		t.Errorf("selected = %+v, want old (age filter disabled)", selected)
	}
}

func TestSelectEligibleIgnoresPinnedStatus(t *testing.T) {
	pinned := ageDays("pinned", 0.2)
	pinned.IsPinned = true
	candidates := []PostCandidate{pinned, ageDays("plain", 0.8)}

	// A pinned post that was already engaged with stays ineligible.
	selected, _, err := SelectEligible(candidates, now, 1, recordedSet("pinned"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected == nil || selected.UnitID != "plain" {
		t.Errorf("selected = %+v, want plain", selected)
	}

	// And an unengaged pinned post is selectable like any other.
	selected, _, err = SelectEligible(candidates, now, 1, neverRecorded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected == nil || selected.UnitID != "pinned" {
		t.Errorf("selected = %+v, want pinned (it is newest)", selected)
	}
}

func TestSelectEligibleLedgerErrorAborts(t *testing.T) {
	boom := errors.New("ledger down")
	_, _, err := SelectEligible([]PostCandidate{ageDays("a", 0.5)}, now, 1, func(string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestCaptionWithinBounds(t *testing.T) {
	cases := []struct {
		length int
		want   bool
	}{
		{49, false},
		{50, true},
		{2200, true},
		{2201, false},
	}
	for _, tc := range cases {
		if got := CaptionWithinBounds(tc.length, 50, 2200); got != tc.want {
			t.Errorf("CaptionWithinBounds(%d, 50, 2200) = %v, want %v", tc.length, got, tc.want)
		}
	}
}
