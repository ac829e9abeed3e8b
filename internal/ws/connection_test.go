package ws

import (
	"net"
	"testing"

	"github.com/npcchatter/campaign-chat/internal/campaign"
	"github.com/npcchatter/campaign-chat/internal/identity"
)

func newTestConnection(id string, fd int) (*Connection, net.Conn) {
	server, client := net.Pipe()
	return &Connection{
		ID:   id,
		User: identity.Identity{ID: "u-" + id, DisplayName: "Tester"},
		Conn: server,
		Fd:   fd,
	}, client
}

func TestConnectionManagerAddGet(t *testing.T) {
	cm := NewConnectionManager()
	conn, peer := newTestConnection("c1", 10)
	defer peer.Close()

	cm.Add(conn)

	if got := cm.Get("c1"); got != conn {
		t.Error("Get by ID returned wrong connection")
	}
	if got := cm.GetByFd(10); got != conn {
		t.Error("Get by fd returned wrong connection")
	}
	if cm.Count() != 1 {
		t.Errorf("expected count 1, got %d", cm.Count())
	}
}

func TestConnectionManagerRemove(t *testing.T) {
	cm := NewConnectionManager()
	conn, peer := newTestConnection("c1", 10)
	defer peer.Close()

	cm.Add(conn)
	if !cm.Remove("c1") {
		t.Fatal("expected Remove to report the connection as found")
	}
	if cm.Remove("c1") {
		t.Fatal("expected second Remove to report already gone")
	}
	if cm.Get("c1") != nil {
		t.Error("connection still resolvable by ID after removal")
	}
	if cm.GetByFd(10) != nil {
		t.Error("connection still resolvable by fd after removal")
	}
	if cm.Count() != 0 {
		t.Errorf("expected count 0, got %d", cm.Count())
	}
}

func TestConnectionManagerAll(t *testing.T) {
	cm := NewConnectionManager()
	for i := 0; i < 3; i++ {
		conn, peer := newTestConnection(string(rune('a'+i)), 100+i)
		defer peer.Close()
		cm.Add(conn)
	}

	all := cm.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 connections, got %d", len(all))
	}
}

func TestConnectionSessionMountCycle(t *testing.T) {
	conn, peer := newTestConnection("c1", 10)
	defer peer.Close()
	defer conn.Close()

	if sess, id := conn.Session(); sess != nil || id != "" {
		t.Fatal("expected no session on a fresh connection")
	}

	first := &campaign.Session{}
	second := &campaign.Session{}

	if prev := conn.SetSession("42", first); prev != nil {
		t.Fatal("expected no previous session on first mount")
	}
	if sess, id := conn.Session(); sess != first || id != "42" {
		t.Errorf("expected first session on campaign 42, got %p/%q", sess, id)
	}

	// Remounting returns the displaced session so the gateway can close it.
	if prev := conn.SetSession("7", second); prev != first {
		t.Fatal("expected remount to hand back the first session")
	}

	if taken := conn.TakeSession(); taken != second {
		t.Fatal("expected take to detach the second session")
	}
	if sess, id := conn.Session(); sess != nil || id != "" {
		t.Error("expected nothing mounted after take")
	}
}
