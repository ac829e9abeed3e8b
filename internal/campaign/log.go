package campaign

import "sync"

// DefaultHistoryLimit is the number of past events requested when a session
// hydrates its log.
const DefaultHistoryLimit = 25

// MessageLog is the append-only, time-ordered record of a session's received
// and sent events. It is seeded once by a history replay and thereafter
// appended by live events. It is goroutine-safe.
//
// Hydration and live delivery can race: a live event may be appended before
// the history page resolves. Hydrate therefore prepends the history page
// ahead of everything already appended instead of overwriting the log, keyed
// by arrival sequence rather than wall-clock timestamps.
type MessageLog struct {
	mu       sync.RWMutex
	entries  []logEntry
	nextSeq  uint64
	hydrated bool
}

type logEntry struct {
	seq uint64
	ev  Event
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds a live event to the tail and returns its sequence number.
func (l *MessageLog) Append(ev Event) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(ev)
}

// AppendOptimistic adds a locally-originated chat event marked optimistic,
// shown to the sender before the publish resolves. The returned sequence
// number lets a failed publish mark the entry afterwards.
func (l *MessageLog) AppendOptimistic(ev Event) uint64 {
	ev.Optimistic = true
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(ev)
}

func (l *MessageLog) append(ev Event) uint64 {
	l.nextSeq++
	l.entries = append(l.entries, logEntry{seq: l.nextSeq, ev: ev})
	return l.nextSeq
}

// MarkFailed flags the entry with the given sequence number as failed.
// Unknown sequence numbers are ignored.
func (l *MessageLog) MarkFailed(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].seq == seq {
			l.entries[i].ev.Failed = true
			return
		}
	}
}

// Hydrate seeds the log with a history page in chronological order (oldest
// first). Entries already appended live stay at the tail, after the history.
// Only the first call has any effect.
func (l *MessageLog) Hydrate(history []Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hydrated {
		return
	}
	l.hydrated = true

	if len(history) == 0 {
		return
	}

	merged := make([]logEntry, 0, len(history)+len(l.entries))
	for _, ev := range history {
		l.nextSeq++
		merged = append(merged, logEntry{seq: l.nextSeq, ev: ev})
	}
	// Live entries keep their relative order; their original sequence
	// numbers are lower but ordering within the slice is what matters.
	merged = append(merged, l.entries...)
	l.entries = merged
}

// Events returns a snapshot copy of the log in display order.
func (l *MessageLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.ev
	}
	return out
}

// Len returns the number of entries in the log.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
