// Package store is the authoritative holder of all per-user content state:
// accounts, pillars, the backlog queue, the committed schedule, the weekly
// availability pattern, voice samples, the activity feed, and the generation
// throttle.
//
// All application code (HTTP handlers, WebSocket push, dispatch) talks to
// the Store — never directly to the bbolt layer. Mutations go through a
// Session, which applies them synchronously, runs the queue scheduler when
// the backlog, the committed schedule, or the pattern changed, and persists
// the full user document before returning.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beeziehmf/threadyflow-app/internal/id"
	"github.com/beeziehmf/threadyflow-app/internal/metrics"
)

// ─── Error sentinels ──────────────────────────────────────────────────────────

var (
	// ErrInvalid wraps all validation failures: the operation was not
	// attempted and no state was mutated.
	ErrInvalid = errors.New("store: invalid input")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrSlotTaken is returned when a direct scheduling request targets an
	// already-occupied (date, time) slot.
	ErrSlotTaken = errors.New("store: slot already scheduled")

	// ErrGenerationLimit is the distinct refusal condition surfaced when the
	// per-session generation ceiling has been reached. It is checked before
	// the AI collaborator is contacted.
	ErrGenerationLimit = errors.New("store: generation limit reached")

	// ErrUnknownSession is returned for expired or never-issued session tokens.
	ErrUnknownSession = errors.New("store: unknown session")
)

// ─── Options ──────────────────────────────────────────────────────────────────

// Options tunes scheduling and throttling behaviour. Zero values fall back
// to the defaults below.
type Options struct {
	HorizonDays     int
	Location        *time.Location
	GenerationLimit int

	// Now is the clock used for scheduling passes. Overridable in tests.
	Now func() time.Time

	// Metrics receives the content pipeline counters. A nil registry is
	// replaced with a private one so callers never need to care.
	Metrics *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.HorizonDays <= 0 {
		o.HorizonDays = 365
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.GenerationLimit <= 0 {
		o.GenerationLimit = 30
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Metrics == nil {
		o.Metrics = new(metrics.Registry)
	}
	return o
}

// ─── Store ────────────────────────────────────────────────────────────────────

// Store manages session lifecycles over the document DB.
// All methods are safe for concurrent use.
type Store struct {
	db   *DB
	opts Options

	mu      sync.Mutex
	byToken map[string]*Session
	byUser  map[string]*Session
}

// New creates a Store over db.
func New(db *DB, opts Options) *Store {
	return &Store{
		db:      db,
		opts:    opts.withDefaults(),
		byToken: make(map[string]*Session),
		byUser:  make(map[string]*Session),
	}
}

// DB exposes the underlying document store. The dispatch job reads and
// writes user documents directly: it runs on its own timer and is not
// synchronized with interactive sessions beyond sharing the same documents.
func (s *Store) DB() *DB { return s.db }

// SignIn opens (or re-attaches to) the session for userID, hydrating state
// from the document store — absent state initializes empty defaults — and
// running an initial scheduling pass. It returns a fresh session token.
func (s *Store) SignIn(userID string) (string, *Session, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("%w: user id must not be empty", ErrInvalid)
	}

	token, err := id.New()
	if err != nil {
		return "", nil, fmt.Errorf("store: generate session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	if !ok {
		// Hydrate before publishing the session: a concurrent sign-in for
		// the same user must never see partially loaded state.
		sess = newSession(userID, s.db, s.opts)
		if err := sess.hydrate(); err != nil {
			return "", nil, err
		}
		s.byUser[userID] = sess
	}
	s.byToken[token] = sess
	return token, sess, nil
}

// Session resolves a session token.
func (s *Store) Session(token string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.byToken[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// SignOut invalidates the token. When it was the last token attached to the
// session, the in-memory state is reset to empty defaults; stored state is
// left untouched either way, and the next sign-in hydrates it again.
func (s *Store) SignOut(token string) error {
	s.mu.Lock()
	sess, ok := s.byToken[token]
	last := false
	if ok {
		delete(s.byToken, token)
		// The user binding — and the in-memory state — survive as long as
		// any other token still points at this session. Resetting under a
		// live token would hand the survivor an emptied state and let its
		// next persist overwrite the stored document.
		last = true
		for _, other := range s.byToken {
			if other == sess {
				last = false
				break
			}
		}
		if last {
			delete(s.byUser, sess.userID)
		}
	}
	s.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}
	if last {
		sess.reset()
	}
	return nil
}

// DropScheduled removes the given posts from a live session's in-memory
// calendar after a dispatch pass already removed them from storage. Without
// this, the session's next persist would resurrect them. Users without a
// live session need nothing: the next sign-in hydrates the stored document.
func (s *Store) DropScheduled(userID string, postIDs []string) {
	if len(postIDs) == 0 {
		return
	}
	s.mu.Lock()
	sess, ok := s.byUser[userID]
	s.mu.Unlock()
	if !ok {
		return
	}
	sess.dropScheduled(postIDs)
}
