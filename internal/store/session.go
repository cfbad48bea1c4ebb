package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/beeziehmf/threadyflow-app/internal/id"
	"github.com/beeziehmf/threadyflow-app/internal/schedule"
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// maxActivityEntries bounds the activity feed; the oldest entries drop off.
const maxActivityEntries = 20

// Session is the in-memory working state for one signed-in user.
//
// Every mutating method follows the same shape: validate, mutate, append an
// activity entry, reconcile when the backlog / committed schedule / pattern
// changed, persist the full document, bump the revision. The revision lets
// pollers (the WebSocket pusher) detect changes cheaply.
//
// All methods are safe for concurrent use.
type Session struct {
	userID string
	db     *DB
	opts   Options

	mu              sync.Mutex
	accounts        []types.Account
	pillars         []types.ContentPillar
	queued          []types.QueuedPost
	scheduled       []types.ScheduledPost
	pattern         slots.Pattern
	voiceSamples    []types.VoiceSample
	voiceProfile    *types.VoiceProfile // session-scoped, never persisted
	threads         *types.ThreadsConnection
	generationCount int
	activity        []types.ActivityEntry // newest first, session-scoped
	revision        uint64
}

func newSession(userID string, db *DB, opts Options) *Session {
	return &Session{userID: userID, db: db, opts: opts}
}

// UserID returns the stable user identifier this session is keyed by.
func (s *Session) UserID() string { return s.userID }

// hydrate loads the persisted document and runs the initial scheduling pass.
func (s *Session) hydrate() error {
	doc, found, err := s.db.Load(s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if found {
		s.accounts = doc.Accounts
		s.pillars = doc.Pillars
		s.queued = doc.Queued
		s.scheduled = doc.Scheduled
		s.pattern = doc.Pattern
		s.voiceSamples = doc.VoiceSamples
		s.generationCount = doc.GenerationCount
		s.threads = doc.Threads
	}
	s.reconcileLocked()
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.revision++
	return nil
}

// reset clears all in-memory state. Stored state is untouched.
func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = nil
	s.pillars = nil
	s.queued = nil
	s.scheduled = nil
	s.pattern = slots.Pattern{}
	s.voiceSamples = nil
	s.voiceProfile = nil
	s.threads = nil
	s.generationCount = 0
	s.activity = nil
	s.revision++
}

// ─── Snapshot ─────────────────────────────────────────────────────────────────

// Snapshot is a consistent copy of the session state for read paths.
type Snapshot struct {
	Accounts        []types.Account       `json:"accounts"`
	Pillars         []types.ContentPillar `json:"pillars"`
	Queued          []types.QueuedPost    `json:"queued"`
	Scheduled       []types.ScheduledPost `json:"scheduled"`
	Pattern         slots.Pattern         `json:"pattern"`
	VoiceSamples    []types.VoiceSample   `json:"voice_samples"`
	VoiceProfile    *types.VoiceProfile   `json:"voice_profile,omitempty"`
	GenerationCount int                   `json:"generation_count"`
	GenerationLimit int                   `json:"generation_limit"`
	Activity        []types.ActivityEntry `json:"activity"`
	ThreadsLinked   bool                  `json:"threads_linked"`
	Revision        uint64                `json:"revision"`
}

// Snapshot returns a deep-enough copy of the session state: slices are
// copied so callers can serialize without racing mutations.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Accounts:        append([]types.Account(nil), s.accounts...),
		Pillars:         append([]types.ContentPillar(nil), s.pillars...),
		Queued:          append([]types.QueuedPost(nil), s.queued...),
		Scheduled:       append([]types.ScheduledPost(nil), s.scheduled...),
		Pattern:         slots.Pattern{Days: append([]int(nil), s.pattern.Days...), Times: append([]string(nil), s.pattern.Times...)},
		VoiceSamples:    append([]types.VoiceSample(nil), s.voiceSamples...),
		GenerationCount: s.generationCount,
		GenerationLimit: s.opts.GenerationLimit,
		Activity:        append([]types.ActivityEntry(nil), s.activity...),
		ThreadsLinked:   s.threads != nil,
		Revision:        s.revision,
	}
	if s.voiceProfile != nil {
		p := *s.voiceProfile
		snap.VoiceProfile = &p
	}
	return snap
}

// Revision returns the current mutation counter without copying state.
func (s *Session) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// ─── Accounts ─────────────────────────────────────────────────────────────────

// AddAccount connects a new social destination.
func (s *Session) AddAccount(platform types.Platform, name string) (types.Account, error) {
	if !platform.Valid() {
		return types.Account{}, fmt.Errorf("%w: unknown platform %q", ErrInvalid, platform)
	}
	if name == "" {
		return types.Account{}, fmt.Errorf("%w: account name must not be empty", ErrInvalid)
	}

	acct := types.Account{ID: id.MustNew(), Platform: platform, Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, acct)
	s.logActivityLocked(fmt.Sprintf("Connected %s account %s.", platform, name))
	if err := s.commitLocked(false); err != nil {
		return types.Account{}, err
	}
	return acct, nil
}

// RemoveAccount disconnects an account. Backlog entries that still reference
// it are dropped by the next scheduling pass, not here.
func (s *Session) RemoveAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.accounts {
		if a.ID == accountID {
			s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
			s.logActivityLocked(fmt.Sprintf("Disconnected account %s.", a.Name))
			return s.commitLocked(false)
		}
	}
	return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
}

// ─── Pillars ──────────────────────────────────────────────────────────────────

// AddPillar creates a content pillar.
func (s *Session) AddPillar(name, color string) (types.ContentPillar, error) {
	if name == "" {
		return types.ContentPillar{}, fmt.Errorf("%w: pillar name must not be empty", ErrInvalid)
	}
	p := types.ContentPillar{ID: id.MustNew(), Name: name, Color: color}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pillars = append(s.pillars, p)
	s.logActivityLocked(fmt.Sprintf("Added content pillar %q.", name))
	if err := s.commitLocked(false); err != nil {
		return types.ContentPillar{}, err
	}
	return p, nil
}

// UpdatePillar renames or recolors an existing pillar.
func (s *Session) UpdatePillar(p types.ContentPillar) error {
	if p.Name == "" {
		return fmt.Errorf("%w: pillar name must not be empty", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pillars {
		if s.pillars[i].ID == p.ID {
			s.pillars[i] = p
			return s.commitLocked(false)
		}
	}
	return fmt.Errorf("%w: pillar %s", ErrNotFound, p.ID)
}

// RemovePillar deletes a pillar. Posts referencing it keep their pillar id;
// pillars carry no scheduling semantics.
func (s *Session) RemovePillar(pillarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pillars {
		if p.ID == pillarID {
			s.pillars = append(s.pillars[:i], s.pillars[i+1:]...)
			s.logActivityLocked(fmt.Sprintf("Removed content pillar %q.", p.Name))
			return s.commitLocked(false)
		}
	}
	return fmt.Errorf("%w: pillar %s", ErrNotFound, pillarID)
}

// ─── Availability pattern ─────────────────────────────────────────────────────

// SetPattern replaces the weekly availability pattern and immediately re-runs
// the queue scheduler against it.
func (s *Session) SetPattern(p slots.Pattern) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = p
	s.logActivityLocked("Updated queue schedule.")
	return s.commitLocked(true)
}

// ─── Queue / backlog ─────────────────────────────────────────────────────────

// Enqueue adds a thread to the backlog for automatic placement and runs a
// scheduling pass; the entry may come back already placed.
func (s *Session) Enqueue(thread types.Thread, accountID, pillarID string) (types.QueuedPost, error) {
	if thread.Title == "" || len(thread.Posts) == 0 {
		return types.QueuedPost{}, fmt.Errorf("%w: thread must have a title and at least one post", ErrInvalid)
	}
	if accountID == "" {
		return types.QueuedPost{}, fmt.Errorf("%w: account id must not be empty", ErrInvalid)
	}

	entry := types.QueuedPost{ID: id.MustNew(), Thread: thread, AccountID: accountID, PillarID: pillarID}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, entry)
	s.opts.Metrics.PostsQueued.Inc()
	s.logActivityLocked(fmt.Sprintf("Added %q to the queue.", thread.Title))
	if err := s.commitLocked(true); err != nil {
		return types.QueuedPost{}, err
	}
	return entry, nil
}

// ─── Direct scheduling ────────────────────────────────────────────────────────

// ScheduleThread commits a thread to an explicit (date, time) slot chosen by
// the user. The slot must be free; the no-double-booking invariant holds for
// direct scheduling exactly as it does for automatic placement.
func (s *Session) ScheduleThread(thread types.Thread, accountID, date, hhmm, pillarID string) (types.ScheduledPost, error) {
	if thread.Title == "" || len(thread.Posts) == 0 {
		return types.ScheduledPost{}, fmt.Errorf("%w: thread must have a title and at least one post", ErrInvalid)
	}
	if !slots.ValidDate(date) || !slots.ValidTime(hhmm) {
		return types.ScheduledPost{}, fmt.Errorf("%w: date and time are required (YYYY-MM-DD, HH:MM)", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var acct *types.Account
	for i := range s.accounts {
		if s.accounts[i].ID == accountID {
			acct = &s.accounts[i]
			break
		}
	}
	if acct == nil {
		return types.ScheduledPost{}, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	for _, p := range s.scheduled {
		if p.Date == date && p.Time == hhmm {
			return types.ScheduledPost{}, fmt.Errorf("%w: %s %s", ErrSlotTaken, date, hhmm)
		}
	}

	post := types.ScheduledPost{
		ID:          id.MustNew(),
		Thread:      thread,
		AccountID:   acct.ID,
		AccountName: acct.Name,
		Platform:    acct.Platform,
		PillarID:    pillarID,
		Date:        date,
		Time:        hhmm,
	}
	s.scheduled = schedule.MergeScheduled(s.scheduled, []types.ScheduledPost{post})
	s.logActivityLocked(fmt.Sprintf("Scheduled thread %q for %s.", thread.Title, acct.Name))
	if err := s.commitLocked(true); err != nil {
		return types.ScheduledPost{}, err
	}
	return post, nil
}

// Unschedule removes a committed post from the calendar.
func (s *Session) Unschedule(postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.scheduled {
		if p.ID == postID {
			s.scheduled = append(s.scheduled[:i], s.scheduled[i+1:]...)
			s.logActivityLocked(fmt.Sprintf("Unscheduled thread %q.", p.Title))
			return s.commitLocked(true)
		}
	}
	return fmt.Errorf("%w: scheduled post %s", ErrNotFound, postID)
}

// ─── Generation throttle ──────────────────────────────────────────────────────

// CheckGenerationBudget returns ErrGenerationLimit once the per-session
// ceiling is reached. Callers must check before contacting the AI
// collaborator.
func (s *Session) CheckGenerationBudget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generationCount >= s.opts.GenerationLimit {
		s.opts.Metrics.GenerationThrottled.Inc()
		return fmt.Errorf("%w (%d/%d)", ErrGenerationLimit, s.generationCount, s.opts.GenerationLimit)
	}
	return nil
}

// RecordGeneration counts a successful generation call and logs it.
func (s *Session) RecordGeneration(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generationCount++
	s.opts.Metrics.ThreadsGenerated.Inc()
	s.logActivityLocked(fmt.Sprintf("Generated new thread: %q.", title))
	return s.commitLocked(false)
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// AddVoiceSample stores a writing sample for voice analysis.
func (s *Session) AddVoiceSample(text string) (types.VoiceSample, error) {
	if text == "" {
		return types.VoiceSample{}, fmt.Errorf("%w: sample text must not be empty", ErrInvalid)
	}
	sample := types.VoiceSample{ID: id.MustNew(), Text: text}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceSamples = append(s.voiceSamples, sample)
	if err := s.commitLocked(false); err != nil {
		return types.VoiceSample{}, err
	}
	return sample, nil
}

// RemoveVoiceSample deletes a writing sample.
func (s *Session) RemoveVoiceSample(sampleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.voiceSamples {
		if v.ID == sampleID {
			s.voiceSamples = append(s.voiceSamples[:i], s.voiceSamples[i+1:]...)
			return s.commitLocked(false)
		}
	}
	return fmt.Errorf("%w: voice sample %s", ErrNotFound, sampleID)
}

// VoiceSampleTexts returns the raw sample texts for analysis.
func (s *Session) VoiceSampleTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.voiceSamples))
	for _, v := range s.voiceSamples {
		out = append(out, v.Text)
	}
	return out
}

// SetVoiceProfile stores the analysis result for the session.
func (s *Session) SetVoiceProfile(p types.VoiceProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceProfile = &p
	s.opts.Metrics.VoiceAnalyses.Inc()
	s.logActivityLocked("Analyzed brand voice from writing samples.")
	s.revision++
}

// VoiceProfile returns the session's analysis result, if any.
func (s *Session) VoiceProfile() *types.VoiceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voiceProfile == nil {
		return nil
	}
	p := *s.voiceProfile
	return &p
}

// ─── Threads connection ───────────────────────────────────────────────────────

// SetThreadsConnection persists the brokered OAuth state after a successful
// token exchange.
func (s *Session) SetThreadsConnection(conn types.ThreadsConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = &conn
	s.logActivityLocked(fmt.Sprintf("Connected Threads account @%s.", conn.Username))
	return s.commitLocked(false)
}

// ─── Activity ─────────────────────────────────────────────────────────────────

// Activity returns the feed, newest first, at most maxActivityEntries long.
func (s *Session) Activity() []types.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ActivityEntry(nil), s.activity...)
}

// logActivityLocked prepends an activity entry, trimming the feed to its
// bound. Caller must hold s.mu.
func (s *Session) logActivityLocked(text string) {
	entry := types.ActivityEntry{
		ID:     id.MustNew(),
		Text:   text,
		UnixMs: s.opts.Now().UnixMilli(),
	}
	s.activity = append([]types.ActivityEntry{entry}, s.activity...)
	if len(s.activity) > maxActivityEntries {
		s.activity = s.activity[:maxActivityEntries]
	}
}

// dropScheduled removes posts by ID from the in-memory calendar. Storage is
// not touched: the caller has already rewritten the stored document.
func (s *Session) dropScheduled(postIDs []string) {
	drop := make(map[string]struct{}, len(postIDs))
	for _, id := range postIDs {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.scheduled[:0]
	for _, p := range s.scheduled {
		if _, gone := drop[p.ID]; !gone {
			kept = append(kept, p)
		} else {
			s.logActivityLocked(fmt.Sprintf("Dispatched %q for publishing.", p.Title))
		}
	}
	s.scheduled = kept
	s.revision++
}

// ─── Reconcile & persistence ──────────────────────────────────────────────────

// Reconcile runs a scheduling pass outside of any other mutation.
func (s *Session) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(true)
}

// commitLocked finishes a mutation: optionally reconciles, then persists and
// bumps the revision. Caller must hold s.mu.
func (s *Session) commitLocked(reconcile bool) error {
	if reconcile {
		s.reconcileLocked()
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.revision++
	return nil
}

// reconcileLocked converts as much of the backlog as possible into committed
// posts. Caller must hold s.mu.
func (s *Session) reconcileLocked() {
	res := schedule.Run(schedule.RunInput{
		Now:         s.opts.Now(),
		Location:    s.opts.Location,
		Pattern:     s.pattern,
		Queued:      s.queued,
		Scheduled:   s.scheduled,
		Accounts:    s.accounts,
		HorizonDays: s.opts.HorizonDays,
	})

	if len(res.Placed) > 0 {
		s.scheduled = schedule.MergeScheduled(s.scheduled, res.Placed)
		s.opts.Metrics.PostsAutoPlaced.Add(int64(len(res.Placed)))
		for _, p := range res.Placed {
			s.logActivityLocked(fmt.Sprintf("Auto-scheduled %q for %s on %s at %s.", p.Title, p.AccountName, p.Date, p.Time))
		}
	}
	if len(res.Dropped) > 0 {
		s.opts.Metrics.PostsDropped.Add(int64(len(res.Dropped)))
	}
	for _, d := range res.Dropped {
		// The entry's account no longer exists: it leaves the queue without
		// being placed. Logged so the disappearance is traceable.
		s.logActivityLocked(fmt.Sprintf("Removed %q from the queue: its account no longer exists.", d.Title))
		slog.Warn("queued post dropped, account missing",
			"user_id", s.userID,
			"queued_id", d.ID,
			"account_id", d.AccountID,
		)
	}
	if len(res.Placed) > 0 || len(res.Dropped) > 0 {
		s.queued = res.Remainder
	}
}

// persistLocked merge-writes the full document. Caller must hold s.mu.
func (s *Session) persistLocked() error {
	doc := Document{
		Accounts:        s.accounts,
		Pillars:         s.pillars,
		Queued:          s.queued,
		Scheduled:       s.scheduled,
		Pattern:         s.pattern,
		VoiceSamples:    s.voiceSamples,
		GenerationCount: s.generationCount,
		Threads:         s.threads,
	}
	if err := s.db.Save(s.userID, doc); err != nil {
		return fmt.Errorf("store: persist user %s: %w", s.userID, err)
	}
	return nil
}
