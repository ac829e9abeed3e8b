package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/npcchatter/campaign-chat/internal/campaign"
	"github.com/npcchatter/campaign-chat/internal/identity"
)

// Connection represents a single WebSocket client connection: the
// authenticated user behind it, the campaign session currently mounted on it
// (if any), and a write mutex for serializing outbound frames.
type Connection struct {
	ID         string            // connection ID (UUID)
	User       identity.Identity // authenticated user from the bearer token
	Conn       net.Conn          // underlying TCP connection
	Fd         int               // file descriptor for poller lookups
	RemoteIP   string            // client address for rate limiting
	CreatedAt  time.Time         // when the connection was established
	LastPing   time.Time         // last heartbeat received from the client
	writeMu    sync.Mutex        // serializes writes to this connection
	processing int32             // atomic flag: 0 = idle, 1 = being read by handleConn

	sessMu     sync.Mutex
	session    *campaign.Session
	campaignID string
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// SetSession mounts a campaign session on this connection and returns the
// previously mounted one (nil if none) so the caller can tear it down.
func (c *Connection) SetSession(campaignID string, s *campaign.Session) *campaign.Session {
	c.sessMu.Lock()
	prev := c.session
	c.session = s
	c.campaignID = campaignID
	c.sessMu.Unlock()
	return prev
}

// Session returns the currently mounted campaign session and its campaign ID.
// The session is nil when no campaign is mounted.
func (c *Connection) Session() (*campaign.Session, string) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.session, c.campaignID
}

// TakeSession detaches and returns the mounted session, leaving none mounted.
func (c *Connection) TakeSession() *campaign.Session {
	c.sessMu.Lock()
	prev := c.session
	c.session = nil
	c.campaignID = ""
	c.sessMu.Unlock()
	return prev
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both connection ID and fd.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // connection ID -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
