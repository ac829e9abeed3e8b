package campaign

import (
	"sync"
	"time"
)

const (
	// TypingTTL is how long a typing indicator stays visible after the
	// last signal for that user.
	TypingTTL = 2 * time.Second

	// typingSweepInterval is how often expired entries are removed in the
	// background. Reads filter expired entries themselves, so the sweeper
	// only bounds memory; an entry may be visible to Entries callers for
	// at most one tick past its expiry via the onChange callback.
	typingSweepInterval = 500 * time.Millisecond
)

// TypingEntry records one user currently typing and when the indicator
// should disappear.
type TypingEntry struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"-"`
}

// TypingTracker maintains the set of users currently typing. Each entry
// self-expires TypingTTL after its most recent signal; a repeated signal for
// the same user resets the expiry instead of duplicating the entry.
type TypingTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[string]TypingEntry
	onChange func()
	done     chan struct{}
	once     sync.Once
}

// NewTypingTracker creates a tracker with the given TTL (TypingTTL if zero).
// onChange, if non-nil, is called whenever the visible set changes, including
// when the sweeper removes expired entries.
func NewTypingTracker(ttl time.Duration, onChange func()) *TypingTracker {
	if ttl <= 0 {
		ttl = TypingTTL
	}
	return &TypingTracker{
		ttl:      ttl,
		entries:  make(map[string]TypingEntry),
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweeper. It returns immediately; the sweeper
// exits when Stop is called.
func (t *TypingTracker) Start() {
	go func() {
		ticker := time.NewTicker(typingSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case now := <-ticker.C:
				if t.sweep(now) && t.onChange != nil {
					t.onChange()
				}
			}
		}
	}()
}

// Stop terminates the sweeper. Safe to call more than once.
func (t *TypingTracker) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Signal upserts a typing entry for the user, resetting its expiry.
func (t *TypingTracker) Signal(userID, name string) {
	if userID == "" {
		return
	}

	t.mu.Lock()
	t.entries[userID] = TypingEntry{
		UserID:    userID,
		Name:      name,
		ExpiresAt: time.Now().Add(t.ttl),
	}
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange()
	}
}

// Entries returns the users currently typing. Expired entries are filtered
// out even if the sweeper has not run yet.
func (t *TypingTracker) Entries() []TypingEntry {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TypingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	return out
}

// sweep removes expired entries and reports whether any were removed.
func (t *TypingTracker) sweep(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := false
	for id, e := range t.entries {
		if !e.ExpiresAt.After(now) {
			delete(t.entries, id)
			removed = true
		}
	}
	return removed
}
