package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/npcchatter/campaign-chat/internal/identity"
)

func directoryServer(t *testing.T, campaigns []Campaign) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-bearer" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if r.URL.Path != "/api/campaigns" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(campaigns)
	}))
}

func TestClientListRefreshesCache(t *testing.T) {
	want := []Campaign{
		{ID: "c1", Name: "Curse of Strahd"},
		{ID: "c2", Name: "One-shot night"},
	}
	srv := directoryServer(t, want)
	defer srv.Close()

	cache := NewCache(filepath.Join(t.TempDir(), "campaigns.json"))
	client := NewClient(srv.URL, identity.Static("test-bearer"), cache)

	got, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" {
		t.Fatalf("unexpected list: %+v", got)
	}

	// A successful list must leave the cache holding the same campaigns.
	cached, err := cache.Load()
	if err != nil {
		t.Fatalf("cache was not refreshed: %v", err)
	}
	if len(cached) != 2 || cached[1].Name != "One-shot night" {
		t.Fatalf("unexpected cache contents: %+v", cached)
	}
}

func TestClientListServesCacheWhenUnreachable(t *testing.T) {
	want := []Campaign{{ID: "c1", Name: "Curse of Strahd"}}
	srv := directoryServer(t, want)

	cache := NewCache(filepath.Join(t.TempDir(), "campaigns.json"))
	client := NewClient(srv.URL, identity.Static("test-bearer"), cache)

	if _, err := client.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}

	// Take the server down; the cached list keeps the UI alive.
	srv.Close()

	got, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("expected cached fallback, got error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("unexpected cached list: %+v", got)
	}
}

func TestClientListUnreachableWithoutCacheErrors(t *testing.T) {
	srv := directoryServer(t, nil)
	srv.Close()

	client := NewClient(srv.URL, identity.Static("test-bearer"), nil)
	if _, err := client.List(context.Background()); err == nil {
		t.Fatal("expected error with no cache to fall back on")
	}
}

func TestClientListUnreachableWithEmptyCacheErrors(t *testing.T) {
	srv := directoryServer(t, nil)
	srv.Close()

	// The cache file was never written, so the degrade path has nothing to
	// serve and the original error must surface.
	cache := NewCache(filepath.Join(t.TempDir(), "campaigns.json"))
	client := NewClient(srv.URL, identity.Static("test-bearer"), cache)
	if _, err := client.List(context.Background()); err == nil {
		t.Fatal("expected error when the cache is empty")
	}
}
