package campaign

import (
	"fmt"
	"sync"
	"testing"
)

func chat(user, text string) Event {
	return Event{Type: EventChat, User: user, Text: text}
}

func TestLogAppendOrder(t *testing.T) {
	l := NewMessageLog()
	l.Append(chat("a", "one"))
	l.Append(chat("b", "two"))
	l.Append(chat("a", "three"))

	events := l.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"one", "two", "three"} {
		if events[i].Text != want {
			t.Errorf("events[%d]: expected %q, got %q", i, want, events[i].Text)
		}
	}
}

func TestLogOptimisticLifecycle(t *testing.T) {
	l := NewMessageLog()
	seq := l.AppendOptimistic(chat("a", "pending"))

	events := l.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Optimistic {
		t.Error("expected entry to be marked optimistic")
	}
	if events[0].Failed {
		t.Error("expected entry not to be marked failed yet")
	}

	l.MarkFailed(seq)
	events = l.Events()
	if !events[0].Failed {
		t.Error("expected entry to be marked failed")
	}
}

func TestLogMarkFailedUnknownSeq(t *testing.T) {
	l := NewMessageLog()
	l.Append(chat("a", "one"))
	l.MarkFailed(999) // must not panic or touch existing entries

	if l.Events()[0].Failed {
		t.Error("unrelated entry was marked failed")
	}
}

// Hydration can lose the race with live delivery: events may already be in
// the log when the history page resolves. The history must be prepended
// ahead of those entries, never replace them.
func TestHydratePrependsHistoryBeforeEarlyLiveEvents(t *testing.T) {
	l := NewMessageLog()
	l.Append(chat("live", "arrived first"))
	l.Append(chat("live", "arrived second"))

	l.Hydrate([]Event{
		chat("old", "history one"),
		chat("old", "history two"),
	})

	events := l.Events()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	want := []string{"history one", "history two", "arrived first", "arrived second"}
	for i, w := range want {
		if events[i].Text != w {
			t.Errorf("events[%d]: expected %q, got %q", i, w, events[i].Text)
		}
	}
}

func TestHydrateOnlyFirstCallEffective(t *testing.T) {
	l := NewMessageLog()
	l.Hydrate([]Event{chat("old", "first page")})
	l.Hydrate([]Event{chat("old", "second page")})

	events := l.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "first page" {
		t.Errorf("expected %q, got %q", "first page", events[0].Text)
	}
}

func TestHydrateEmptyHistoryStillConsumesTheOneShot(t *testing.T) {
	l := NewMessageLog()
	l.Hydrate(nil)
	l.Hydrate([]Event{chat("old", "too late")})

	if l.Len() != 0 {
		t.Fatalf("expected empty log, got %d entries", l.Len())
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewMessageLog()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(chat("u", fmt.Sprintf("%d-%d", n, j)))
			}
		}(i)
	}
	wg.Wait()

	if l.Len() != 800 {
		t.Fatalf("expected 800 entries, got %d", l.Len())
	}
}
