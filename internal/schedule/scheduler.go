// Package schedule implements the automatic queue-to-calendar placement
// algorithm: given a backlog of queued posts, a weekly availability pattern,
// and the existing committed calendar, it deterministically assigns each
// backlog entry the next free future slot.
//
// The scheduler is pure: it never mutates its inputs and has no I/O. The
// store runs it after every relevant mutation and applies the returned delta
// atomically.
package schedule

import (
	"sort"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/id"
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// DefaultHorizonDays bounds how many calendar days forward a single
// placement search may walk before the entry is deferred.
const DefaultHorizonDays = 365

// RunInput carries everything one scheduling pass reads.
type RunInput struct {
	// Now anchors "the past": no placement is ever at or before Now.
	Now time.Time
	// Location interprets slot dates and times.
	Location *time.Location

	Pattern   slots.Pattern
	Queued    []types.QueuedPost    // processed strictly in order, FIFO
	Scheduled []types.ScheduledPost // existing commitments, never moved
	Accounts  []types.Account

	// HorizonDays defaults to DefaultHorizonDays when <= 0.
	HorizonDays int
}

// RunResult is the proposed delta of one pass.
//
// Placed and Remainder partition the placeable backlog; Dropped holds the
// entries whose account no longer exists — they appear in neither Placed nor
// Remainder, and are returned separately only so the caller can log them.
type RunResult struct {
	Placed    []types.ScheduledPost
	Remainder []types.QueuedPost
	Dropped   []types.QueuedPost
}

// Run executes one scheduling pass.
//
// The search for every entry begins at the later of Now and the latest
// existing commitment, which guarantees new placements sort after all
// pre-existing ones. Entries are processed front to back; an entry that
// cannot be placed within the horizon stays in the remainder (in its
// original relative order) and never aborts the pass.
//
// Re-running with unchanged inputs produces identical results; re-running
// after merging a prior pass's placements is a no-op.
func Run(in RunInput) RunResult {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	horizon := in.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}

	searchStart := searchStart(in.Now, in.Scheduled, loc)
	conflicts := NewConflicts(in.Scheduled)
	accounts := accountIndex(in.Accounts)

	var res RunResult
	for _, entry := range in.Queued {
		acct, ok := accounts[entry.AccountID]
		if !ok {
			// The target account was deleted after the entry was queued.
			// The entry is dropped rather than retried forever; the caller
			// records a diagnostic so the disappearance leaves a trace.
			res.Dropped = append(res.Dropped, entry)
			continue
		}

		slot, found := nextFree(in.Pattern, searchStart, in.Now, horizon, loc, conflicts)
		if !found {
			res.Remainder = append(res.Remainder, entry)
			continue
		}

		conflicts.Reserve(slot)
		res.Placed = append(res.Placed, types.ScheduledPost{
			ID:          id.MustNew(),
			Thread:      entry.Thread,
			AccountID:   acct.ID,
			AccountName: acct.Name,
			Platform:    acct.Platform,
			PillarID:    entry.PillarID,
			Date:        slot.Date,
			Time:        slot.Time,
		})
	}
	return res
}

// searchStart returns the later of now and the latest existing commitment.
func searchStart(now time.Time, scheduled []types.ScheduledPost, loc *time.Location) time.Time {
	start := now
	for _, p := range scheduled {
		instant, err := (slots.Slot{Date: p.Date, Time: p.Time}).At(loc)
		if err != nil {
			continue
		}
		if instant.After(start) {
			start = instant
		}
	}
	return start
}

// nextFree walks candidate slots from start and returns the first one that
// is strictly after now and not occupied.
func nextFree(p slots.Pattern, start, now time.Time, horizonDays int, loc *time.Location, conflicts *Conflicts) (slots.Slot, bool) {
	cur := slots.NewCursor(p, start, horizonDays, loc)
	for {
		s, ok := cur.Next()
		if !ok {
			return slots.Slot{}, false
		}
		instant, err := s.At(loc)
		if err != nil {
			continue
		}
		if !instant.After(now) {
			// Defends against same-moment-as-now artifacts when the search
			// start coincides with now.
			continue
		}
		if conflicts.Occupied(s) {
			continue
		}
		return s, true
	}
}

// accountIndex maps account IDs for O(1) resolution.
func accountIndex(accounts []types.Account) map[string]types.Account {
	m := make(map[string]types.Account, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}
	return m
}

// MergeScheduled returns the union of existing and placed, resorted
// ascending by (date, time). Ties keep their relative order, though a tie
// can only occur for malformed slots: the scheduler itself never produces
// duplicates.
func MergeScheduled(existing, placed []types.ScheduledPost) []types.ScheduledPost {
	merged := make([]types.ScheduledPost, 0, len(existing)+len(placed))
	merged = append(merged, existing...)
	merged = append(merged, placed...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].Time < merged[j].Time
	})
	return merged
}
