package realtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHistoryStoreAppendAndPage(t *testing.T) {
	s := newHistoryStore(testRedis(t), 10)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.append(ctx, "campaign:42", []byte(fmt.Sprintf("ev-%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := s.page(ctx, "campaign:42", 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 events, got %d", len(page))
	}
	// Pages come back newest first.
	want := []string{"ev-3", "ev-2", "ev-1"}
	for i, w := range want {
		if string(page[i]) != w {
			t.Errorf("page[%d]: expected %q, got %q", i, w, page[i])
		}
	}
}

func TestHistoryStoreTrimsToDepth(t *testing.T) {
	s := newHistoryStore(testRedis(t), 5)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		if err := s.append(ctx, "campaign:42", []byte(fmt.Sprintf("ev-%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := s.page(ctx, "campaign:42", 100)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 5 {
		t.Fatalf("expected buffer trimmed to 5, got %d", len(page))
	}
	if string(page[0]) != "ev-12" {
		t.Errorf("expected newest event first, got %q", page[0])
	}
	if string(page[4]) != "ev-8" {
		t.Errorf("expected oldest surviving event last, got %q", page[4])
	}
}

func TestHistoryStorePageLimit(t *testing.T) {
	s := newHistoryStore(testRedis(t), 50)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if err := s.append(ctx, "campaign:42", []byte(fmt.Sprintf("ev-%d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := s.page(ctx, "campaign:42", 4)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("expected 4 events, got %d", len(page))
	}
	if string(page[0]) != "ev-10" || string(page[3]) != "ev-7" {
		t.Errorf("unexpected page window: first=%q last=%q", page[0], page[3])
	}
}

func TestHistoryStoreEmptyChannel(t *testing.T) {
	s := newHistoryStore(testRedis(t), 10)

	page, err := s.page(context.Background(), "campaign:empty", 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected empty page, got %d events", len(page))
	}
}

func TestPresenceStoreRoster(t *testing.T) {
	s := newPresenceStore(testRedis(t))
	ctx := context.Background()

	if err := s.enter(ctx, "campaign:42", "u1.ab", []byte(`{"userId":"u1"}`)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := s.enter(ctx, "campaign:42", "u2.cd", []byte(`{"userId":"u2"}`)); err != nil {
		t.Fatalf("enter: %v", err)
	}

	roster, err := s.roster(ctx, "campaign:42")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 members, got %d", len(roster))
	}

	if err := s.leave(ctx, "campaign:42", "u1.ab"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	roster, err = s.roster(ctx, "campaign:42")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("expected 1 member after leave, got %d", len(roster))
	}
	if roster[0].ClientID != "u2.cd" {
		t.Errorf("expected u2.cd, got %q", roster[0].ClientID)
	}
}

func TestPresenceStoreEnterOverwrites(t *testing.T) {
	s := newPresenceStore(testRedis(t))
	ctx := context.Background()

	if err := s.enter(ctx, "campaign:42", "u1.ab", []byte(`{"name":"old"}`)); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := s.enter(ctx, "campaign:42", "u1.ab", []byte(`{"name":"new"}`)); err != nil {
		t.Fatalf("enter: %v", err)
	}

	roster, err := s.roster(ctx, "campaign:42")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("expected re-enter to overwrite, got %d entries", len(roster))
	}
	if string(roster[0].Data) != `{"name":"new"}` {
		t.Errorf("expected fresh data, got %s", roster[0].Data)
	}
}

func TestPresenceChannelsAreIsolated(t *testing.T) {
	s := newPresenceStore(testRedis(t))
	ctx := context.Background()

	if err := s.enter(ctx, "campaign:1", "u1", nil); err != nil {
		t.Fatalf("enter: %v", err)
	}

	roster, err := s.roster(ctx, "campaign:2")
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	if len(roster) != 0 {
		t.Fatalf("expected empty roster on other channel, got %d", len(roster))
	}
}

func TestCapabilityAllows(t *testing.T) {
	c := Capability{
		"campaign:42": {OpPublish, OpSubscribe, OpPresence, OpHistory},
		"campaign:7":  {OpSubscribe},
	}

	if !c.Allows("campaign:42", OpPublish) {
		t.Error("expected publish on campaign:42")
	}
	if !c.Allows("campaign:7", OpSubscribe) {
		t.Error("expected subscribe on campaign:7")
	}
	if c.Allows("campaign:7", OpPublish) {
		t.Error("publish must not be granted on campaign:7")
	}
	if c.Allows("campaign:9", OpSubscribe) {
		t.Error("nothing must be granted on an unlisted channel")
	}
}
