// Package types contains the core domain types shared across all ThreadFlow
// internal packages. It deliberately has zero imports of other ThreadFlow
// packages so that the store, the scheduler, and the transport layers can all
// import from it without creating import cycles.
package types

// Platform identifies a connected social destination. The set is closed:
// new platforms are added here, never invented at runtime.
type Platform string

const (
	PlatformThreads   Platform = "Threads"
	PlatformInstagram Platform = "Instagram"
	PlatformFacebook  Platform = "Facebook"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformThreads, PlatformInstagram, PlatformFacebook:
		return true
	}
	return false
}

// PostSegment is a single short post inside a thread. The ID is stable for
// the lifetime of the thread so that edits address a specific segment.
type PostSegment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Thread is the unit of content: a titled, ordered sequence of post segments
// plus a set of hashtags.
//
// Design rules:
//   - Thread format is final. Only optional fields may be added. Never rename
//     or remove a field — persisted user documents must always be readable.
//   - IDs are ULID strings: time-sortable and globally unique.
type Thread struct {
	Title    string        `json:"title"`
	Posts    []PostSegment `json:"posts"`
	Hashtags []string      `json:"hashtags"`
}

// Account is a connected social destination that posts are scheduled against.
type Account struct {
	ID       string   `json:"id"`
	Platform Platform `json:"platform"`
	Name     string   `json:"name"`
}

// ContentPillar is a categorical tag for organizing content themes. Purely
// descriptive: scheduling correctness never depends on pillars.
type ContentPillar struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// QueuedPost is a thread bound to a target account, awaiting automatic
// placement by the queue scheduler. PillarID may be empty.
type QueuedPost struct {
	ID string `json:"id"`
	Thread
	AccountID string `json:"account_id"`
	PillarID  string `json:"pillar_id,omitempty"`
}

// ScheduledPost is a thread committed to a concrete calendar slot.
// AccountName and Platform are denormalized copies taken from the account at
// commit time, so the calendar stays renderable even if the account is later
// renamed or removed.
//
// Invariant: no two scheduled posts for the same user share an identical
// (Date, Time) pair.
type ScheduledPost struct {
	ID string `json:"id"`
	Thread
	AccountID   string   `json:"account_id"`
	AccountName string   `json:"account_name"`
	Platform    Platform `json:"platform"`
	PillarID    string   `json:"pillar_id,omitempty"`

	// Date is "2006-01-02", Time is "15:04". Kept as strings because slot
	// identity is exact string equality, not instant proximity.
	Date string `json:"date"`
	Time string `json:"time"`
}

// VoiceSample is a user-provided writing sample used for voice analysis.
type VoiceSample struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// VoiceProfile is the AI's summary of a user's writing voice.
type VoiceProfile struct {
	Tone        string `json:"tone"`
	Style       string `json:"style"`
	Description string `json:"description"`
}

// ActivityEntry is one line of the human-readable activity feed.
// UnixMs is UTC milliseconds since the Unix epoch.
type ActivityEntry struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	UnixMs int64  `json:"unix_ms"`
}

// ThreadsConnection holds the brokered OAuth state for a user's Threads
// account: the long-lived token and the platform-side user identity.
type ThreadsConnection struct {
	AccessToken    string `json:"access_token"`
	PlatformUserID string `json:"platform_user_id"`
	Username       string `json:"username"`
	ConnectedAtMs  int64  `json:"connected_at_ms"`
}
