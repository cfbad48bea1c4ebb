package schedule_test

import (
	"testing"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/id"
	"github.com/beeziehmf/threadyflow-app/internal/schedule"
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

var utc = time.UTC

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, utc)
	if err != nil {
		t.Fatalf("mustTime(%q): %v", s, err)
	}
	return ts
}

func acct(idStr, name string) types.Account {
	return types.Account{ID: idStr, Platform: types.PlatformThreads, Name: name}
}

func queued(t *testing.T, accountID, title string) types.QueuedPost {
	t.Helper()
	return types.QueuedPost{
		ID:        id.MustNew(),
		Thread:    types.Thread{Title: title, Posts: []types.PostSegment{{ID: id.MustNew(), Text: title + " body"}}},
		AccountID: accountID,
	}
}

func scheduledAt(date, hhmm string) types.ScheduledPost {
	return types.ScheduledPost{
		ID:        id.MustNew(),
		Thread:    types.Thread{Title: "existing"},
		AccountID: "a1",
		Date:      date,
		Time:      hhmm,
	}
}

// ─── Scenarios from the product behaviour ────────────────────────────────────

// TestRun_NextAllowedDay: pattern Mon/Wed/Fri 09:00, now Tuesday 10:00 —
// the single entry lands on the very next Wednesday at 09:00.
func TestRun_NextAllowedDay(t *testing.T) {
	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-09-01 10:00"), // a Tuesday
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{1, 3, 5}, Times: []string{"09:00"}},
		Queued:   []types.QueuedPost{queued(t, "a1", "X")},
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 || len(res.Remainder) != 0 || len(res.Dropped) != 0 {
		t.Fatalf("unexpected partition: placed=%d remainder=%d dropped=%d",
			len(res.Placed), len(res.Remainder), len(res.Dropped))
	}
	p := res.Placed[0]
	if p.Date != "2026-09-02" || p.Time != "09:00" {
		t.Errorf("want Wednesday 2026-09-02 09:00, got %s %s", p.Date, p.Time)
	}
	if p.AccountName != "@corp" || p.Platform != types.PlatformThreads {
		t.Errorf("account fields not denormalized: %+v", p)
	}
}

// TestRun_MultipleTimesSameDay: two entries, pattern Monday 09:00+14:00 —
// both land on the same Monday, morning then afternoon.
func TestRun_MultipleTimesSameDay(t *testing.T) {
	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-08-30 12:00"), // a Sunday
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{1}, Times: []string{"09:00", "14:00"}},
		Queued:   []types.QueuedPost{queued(t, "a1", "first"), queued(t, "a1", "second")},
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(res.Placed))
	}
	if res.Placed[0].Date != "2026-08-31" || res.Placed[0].Time != "09:00" {
		t.Errorf("first: want 2026-08-31 09:00, got %s %s", res.Placed[0].Date, res.Placed[0].Time)
	}
	if res.Placed[1].Date != "2026-08-31" || res.Placed[1].Time != "14:00" {
		t.Errorf("second: want 2026-08-31 14:00, got %s %s", res.Placed[1].Date, res.Placed[1].Time)
	}
	if res.Placed[0].Title != "first" || res.Placed[1].Title != "second" {
		t.Errorf("FIFO order violated: %s then %s", res.Placed[0].Title, res.Placed[1].Title)
	}
}

// TestRun_SkipsOccupiedSlot: Monday 09:00 is already committed, so the new
// entry takes Monday 14:00.
func TestRun_SkipsOccupiedSlot(t *testing.T) {
	res := schedule.Run(schedule.RunInput{
		Now:       mustTime(t, "2026-08-30 12:00"),
		Location:  utc,
		Pattern:   slots.Pattern{Days: []int{1}, Times: []string{"09:00", "14:00"}},
		Queued:    []types.QueuedPost{queued(t, "a1", "new")},
		Scheduled: []types.ScheduledPost{scheduledAt("2026-08-31", "09:00")},
		Accounts:  []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(res.Placed))
	}
	if res.Placed[0].Date != "2026-08-31" || res.Placed[0].Time != "14:00" {
		t.Errorf("want 2026-08-31 14:00, got %s %s", res.Placed[0].Date, res.Placed[0].Time)
	}
}

// TestRun_SkipsToNextWeekWhenOnlyTimeTaken: with a single configured time,
// an occupied Monday pushes the entry to the following Monday.
func TestRun_SkipsToNextWeekWhenOnlyTimeTaken(t *testing.T) {
	res := schedule.Run(schedule.RunInput{
		Now:       mustTime(t, "2026-08-30 12:00"),
		Location:  utc,
		Pattern:   slots.Pattern{Days: []int{1}, Times: []string{"09:00"}},
		Queued:    []types.QueuedPost{queued(t, "a1", "new")},
		Scheduled: []types.ScheduledPost{scheduledAt("2026-08-31", "09:00")},
		Accounts:  []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(res.Placed))
	}
	if res.Placed[0].Date != "2026-09-07" || res.Placed[0].Time != "09:00" {
		t.Errorf("want next Monday 2026-09-07 09:00, got %s %s", res.Placed[0].Date, res.Placed[0].Time)
	}
}

// TestRun_MissingAccountDropped: an entry whose account no longer exists
// appears in neither Placed nor Remainder, only in Dropped.
func TestRun_MissingAccountDropped(t *testing.T) {
	gone := queued(t, "deleted-account", "orphan")
	ok := queued(t, "a1", "fine")

	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-08-30 12:00"),
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{1}, Times: []string{"09:00"}},
		Queued:   []types.QueuedPost{gone, ok},
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 || res.Placed[0].Title != "fine" {
		t.Fatalf("expected only the valid entry placed, got %+v", res.Placed)
	}
	if len(res.Remainder) != 0 {
		t.Errorf("orphan must not stay in the remainder: %+v", res.Remainder)
	}
	if len(res.Dropped) != 1 || res.Dropped[0].ID != gone.ID {
		t.Errorf("expected the orphan in Dropped, got %+v", res.Dropped)
	}
}

// ─── Properties ──────────────────────────────────────────────────────────────

// TestRun_NoDoubleBooking: many entries, few weekly slots — every
// assigned (date, time) pair is unique across new and pre-existing posts.
func TestRun_NoDoubleBooking(t *testing.T) {
	var backlog []types.QueuedPost
	for i := 0; i < 25; i++ {
		backlog = append(backlog, queued(t, "a1", "post"))
	}
	existing := []types.ScheduledPost{
		scheduledAt("2026-08-31", "09:00"),
		scheduledAt("2026-09-02", "09:00"),
	}

	res := schedule.Run(schedule.RunInput{
		Now:       mustTime(t, "2026-08-30 12:00"),
		Location:  utc,
		Pattern:   slots.Pattern{Days: []int{1, 3}, Times: []string{"09:00", "14:00"}},
		Queued:    backlog,
		Scheduled: existing,
		Accounts:  []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 25 {
		t.Fatalf("expected all 25 placed, got %d", len(res.Placed))
	}
	seen := make(map[string]struct{})
	for _, p := range schedule.MergeScheduled(existing, res.Placed) {
		key := p.Date + "T" + p.Time
		if _, dup := seen[key]; dup {
			t.Fatalf("double-booked slot %s", key)
		}
		seen[key] = struct{}{}
	}
}

// TestRun_NoPastPlacement: every placement is strictly after now.
func TestRun_NoPastPlacement(t *testing.T) {
	now := mustTime(t, "2026-08-31 09:00") // exactly a pattern slot
	res := schedule.Run(schedule.RunInput{
		Now:      now,
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{1}, Times: []string{"09:00"}},
		Queued:   []types.QueuedPost{queued(t, "a1", "X")},
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(res.Placed))
	}
	instant, err := (slots.Slot{Date: res.Placed[0].Date, Time: res.Placed[0].Time}).At(utc)
	if err != nil {
		t.Fatalf("parse placement: %v", err)
	}
	if !instant.After(now) {
		t.Errorf("placement %v not strictly after now %v", instant, now)
	}
	// The same-moment-as-now Monday 09:00 must have been rejected.
	if res.Placed[0].Date == "2026-08-31" {
		t.Errorf("placed at now's own slot: %+v", res.Placed[0])
	}
}

// TestRun_FIFOFairness: earlier backlog entries get earlier (or equal)
// slots than later ones.
func TestRun_FIFOFairness(t *testing.T) {
	var backlog []types.QueuedPost
	for i := 0; i < 10; i++ {
		backlog = append(backlog, queued(t, "a1", "post"))
	}
	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-08-30 12:00"),
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{1, 4}, Times: []string{"08:00", "18:00"}},
		Queued:   backlog,
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 10 {
		t.Fatalf("expected 10 placements, got %d", len(res.Placed))
	}
	for i := 1; i < len(res.Placed); i++ {
		prev, _ := (slots.Slot{Date: res.Placed[i-1].Date, Time: res.Placed[i-1].Time}).At(utc)
		cur, _ := (slots.Slot{Date: res.Placed[i].Date, Time: res.Placed[i].Time}).At(utc)
		if cur.Before(prev) {
			t.Fatalf("FIFO violated: entry %d at %v before entry %d at %v", i, cur, i-1, prev)
		}
	}
}

// TestRun_PatternConformance: every placement falls on an allowed
// weekday at an allowed time.
func TestRun_PatternConformance(t *testing.T) {
	p := slots.Pattern{Days: []int{2, 5}, Times: []string{"11:30", "16:45"}}
	var backlog []types.QueuedPost
	for i := 0; i < 8; i++ {
		backlog = append(backlog, queued(t, "a1", "post"))
	}
	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-08-30 12:00"),
		Location: utc,
		Pattern:  p,
		Queued:   backlog,
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	for _, placed := range res.Placed {
		if !slots.Allowed(p, slots.Slot{Date: placed.Date, Time: placed.Time}, utc) {
			t.Errorf("placement %s %s violates the pattern", placed.Date, placed.Time)
		}
	}
}

// TestRun_IdempotentRerun: feeding the merged output back with an empty
// backlog changes nothing.
func TestRun_IdempotentRerun(t *testing.T) {
	now := mustTime(t, "2026-08-30 12:00")
	p := slots.Pattern{Days: []int{1}, Times: []string{"09:00", "14:00"}}

	first := schedule.Run(schedule.RunInput{
		Now:      now,
		Location: utc,
		Pattern:  p,
		Queued:   []types.QueuedPost{queued(t, "a1", "a"), queued(t, "a1", "b")},
		Accounts: []types.Account{acct("a1", "@corp")},
	})
	merged := schedule.MergeScheduled(nil, first.Placed)

	second := schedule.Run(schedule.RunInput{
		Now:       now,
		Location:  utc,
		Pattern:   p,
		Queued:    nil,
		Scheduled: merged,
		Accounts:  []types.Account{acct("a1", "@corp")},
	})

	if len(second.Placed) != 0 || len(second.Remainder) != 0 || len(second.Dropped) != 0 {
		t.Errorf("rerun must be a no-op, got %+v", second)
	}
}

// TestRun_EmptyPatternDefersEverything: an empty pattern places nothing
// and keeps the full backlog in order.
func TestRun_EmptyPatternDefersEverything(t *testing.T) {
	a := queued(t, "a1", "a")
	b := queued(t, "a1", "b")

	res := schedule.Run(schedule.RunInput{
		Now:      mustTime(t, "2026-08-30 12:00"),
		Location: utc,
		Pattern:  slots.Pattern{Days: []int{}, Times: []string{"09:00"}},
		Queued:   []types.QueuedPost{a, b},
		Accounts: []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 0 {
		t.Fatalf("expected no placements, got %d", len(res.Placed))
	}
	if len(res.Remainder) != 2 || res.Remainder[0].ID != a.ID || res.Remainder[1].ID != b.ID {
		t.Errorf("remainder must preserve original order, got %+v", res.Remainder)
	}
}

// TestRun_SearchStartsAfterLatestCommitment: a commitment far in the future
// pushes all new placements beyond it.
func TestRun_SearchStartsAfterLatestCommitment(t *testing.T) {
	future := scheduledAt("2026-10-05", "09:00") // a Monday, 5 weeks out

	res := schedule.Run(schedule.RunInput{
		Now:       mustTime(t, "2026-08-30 12:00"),
		Location:  utc,
		Pattern:   slots.Pattern{Days: []int{1}, Times: []string{"09:00", "14:00"}},
		Queued:    []types.QueuedPost{queued(t, "a1", "new")},
		Scheduled: []types.ScheduledPost{future},
		Accounts:  []types.Account{acct("a1", "@corp")},
	})

	if len(res.Placed) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(res.Placed))
	}
	got, _ := (slots.Slot{Date: res.Placed[0].Date, Time: res.Placed[0].Time}).At(utc)
	limit, _ := (slots.Slot{Date: future.Date, Time: future.Time}).At(utc)
	if !got.After(limit) {
		t.Errorf("placement %v must sort after the latest commitment %v", got, limit)
	}
	if res.Placed[0].Date != "2026-10-05" || res.Placed[0].Time != "14:00" {
		t.Errorf("want 2026-10-05 14:00, got %s %s", res.Placed[0].Date, res.Placed[0].Time)
	}
}

// TestRun_PartialProgress: when the horizon runs out mid-pass, earlier
// entries keep their placements and the rest stay queued.
func TestRun_PartialProgress(t *testing.T) {
	var backlog []types.QueuedPost
	for i := 0; i < 5; i++ {
		backlog = append(backlog, queued(t, "a1", "post"))
	}

	// One Monday slot per week, 15-day horizon from Sunday: constrained by
	// the candidate walk, only the first two entries can land.
	res := schedule.Run(schedule.RunInput{
		Now:         mustTime(t, "2026-08-30 12:00"),
		Location:    utc,
		Pattern:     slots.Pattern{Days: []int{1}, Times: []string{"09:00"}},
		Queued:      backlog,
		Accounts:    []types.Account{acct("a1", "@corp")},
		HorizonDays: 15,
	})

	if len(res.Placed) != 2 {
		t.Fatalf("expected 2 placements within a 15-day horizon, got %d", len(res.Placed))
	}
	if len(res.Remainder) != 3 {
		t.Errorf("expected 3 deferred entries, got %d", len(res.Remainder))
	}
	for i := 1; i < len(res.Remainder); i++ {
		if res.Remainder[i-1].ID > res.Remainder[i].ID {
			t.Errorf("remainder order not preserved")
		}
	}
}

// TestMergeScheduled_SortsAscending verifies the committed set is resorted
// by (date, time) after a pass.
func TestMergeScheduled_SortsAscending(t *testing.T) {
	existing := []types.ScheduledPost{
		scheduledAt("2026-09-07", "09:00"),
		scheduledAt("2026-08-31", "14:00"),
	}
	placed := []types.ScheduledPost{
		scheduledAt("2026-08-31", "09:00"),
	}
	merged := schedule.MergeScheduled(existing, placed)

	want := []struct{ d, tm string }{
		{"2026-08-31", "09:00"},
		{"2026-08-31", "14:00"},
		{"2026-09-07", "09:00"},
	}
	for i, w := range want {
		if merged[i].Date != w.d || merged[i].Time != w.tm {
			t.Errorf("merged[%d]: want %s %s, got %s %s", i, w.d, w.tm, merged[i].Date, merged[i].Time)
		}
	}
}
