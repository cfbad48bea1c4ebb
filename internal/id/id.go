// Package id is the single ID-allocation capability for ThreadFlow.
// Every generated identifier (threads, segments, queue entries, scheduled
// posts, pillars, sessions, activity entries) is a ULID: time-sortable,
// globally unique, and collision-free even for allocations made within the
// same millisecond.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// monoEntropy is a package-level monotone entropy source shared across all
// New calls. Using a single shared source ensures that ULIDs remain
// lexicographically ordered even when generated within the same millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New generates a fresh ULID string using the shared monotone entropy
// source. The mutex ensures monotonicity across concurrent calls.
func New() (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	ms := ulid.Timestamp(time.Now())
	u, err := ulid.New(ms, monoEntropy)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// MustNew is like New but panics on error. Generation fails only when the
// OS entropy source does, which is not a recoverable condition.
func MustNew() string {
	s, err := New()
	if err != nil {
		panic(fmt.Sprintf("id.MustNew: %v", err))
	}
	return s
}

// Valid returns an error if s is not a well-formed ULID string.
func Valid(s string) error {
	_, err := ulid.ParseStrict(s)
	return err
}
