package campaign

import "sync"

// Member is one identity currently present on the campaign channel.
type Member struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// PresenceTracker holds the current roster of channel members. Every presence
// notification replaces the roster wholesale with a fresh snapshot from the
// transport; it is never patched incrementally, so a missed delta cannot
// leave stale entries behind.
type PresenceTracker struct {
	mu      sync.RWMutex
	members []Member
}

// NewPresenceTracker creates an empty roster.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{}
}

// Replace swaps the entire roster for the given snapshot. Duplicate userIds
// keep the first occurrence. A nil snapshot empties the roster.
func (t *PresenceTracker) Replace(snapshot []Member) {
	seen := make(map[string]bool, len(snapshot))
	roster := make([]Member, 0, len(snapshot))
	for _, m := range snapshot {
		if m.UserID == "" || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		roster = append(roster, m)
	}

	t.mu.Lock()
	t.members = roster
	t.mu.Unlock()
}

// Members returns a snapshot copy of the roster. Ordering is unspecified.
func (t *PresenceTracker) Members() []Member {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Member, len(t.members))
	copy(out, t.members)
	return out
}
