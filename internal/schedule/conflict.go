package schedule

import (
	"github.com/beeziehmf/threadyflow-app/internal/slots"
	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// Conflicts answers "is this exact slot already taken?" for one scheduling
// pass. It is seeded with the pre-existing committed posts and grows as the
// pass reserves new slots, so a single run can never double-book a slot it
// just filled.
//
// Membership is exact value equality on (date, time) — never a tolerance
// window.
type Conflicts struct {
	taken map[slots.Slot]struct{}
}

// NewConflicts builds the index from the existing committed posts.
func NewConflicts(scheduled []types.ScheduledPost) *Conflicts {
	c := &Conflicts{taken: make(map[slots.Slot]struct{}, len(scheduled))}
	for _, p := range scheduled {
		c.taken[slots.Slot{Date: p.Date, Time: p.Time}] = struct{}{}
	}
	return c
}

// Occupied reports whether the slot is already committed, either before this
// pass or by an earlier reservation within it.
func (c *Conflicts) Occupied(s slots.Slot) bool {
	_, ok := c.taken[s]
	return ok
}

// Reserve marks the slot as taken for the remainder of the pass.
func (c *Conflicts) Reserve(s slots.Slot) {
	c.taken[s] = struct{}{}
}

// Len returns the number of occupied slots.
func (c *Conflicts) Len() int { return len(c.taken) }
