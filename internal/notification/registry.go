package notification

import (
	"sync"

	"github.com/iotstream/notify-core/internal/infrastructure/wsclient"
)

// Status describes where a tenant's connection sits in its lifecycle.
// Transitions are driven by transport callbacks and by the reconnect
// scheduler; REMOVED is implicit in deletion from the registry.
type Status int

const (
	StatusInitializing Status = iota
	StatusConnected
	StatusDisconnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "INITIALIZING"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Transport is the slice of the websocket client the core needs to
// observe and tear down a connection. *wsclient.Conn satisfies it.
type Transport interface {
	State() wsclient.State
	Disconnect() error
}

// Connection is the registry record for one tenant: the live transport
// handle, the token it was established with, and the lifecycle status.
//
// Thread Safety: all accessors lock internally. Status changes from
// concurrent writers (scheduler tick vs transport callback) must go
// through CompareAndSetStatus so a stale writer loses cleanly.
type Connection struct {
	mu     sync.Mutex
	handle Transport
	token  string
	status Status
}

// NewConnection returns a record in StatusInitializing with no handle.
func NewConnection() *Connection {
	return &Connection{status: StatusInitializing}
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) SetStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// CompareAndSetStatus transitions from one status to another only if the
// record is still in the expected state. Returns true when the swap
// happened.
func (c *Connection) CompareAndSetStatus(from, to Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != from {
		return false
	}
	c.status = to
	return true
}

func (c *Connection) Handle() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *Connection) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Attach records a freshly dialed transport and the token it carries,
// and moves the record to StatusInitializing until the open callback
// confirms the session. A record the open callback already moved to
// StatusConnected keeps that status; the dial can race its own open
// event.
func (c *Connection) Attach(handle Transport, token string) {
	c.mu.Lock()
	c.handle = handle
	c.token = token
	if c.status != StatusConnected {
		c.status = StatusInitializing
	}
	c.mu.Unlock()
}

// Registry maps tenant ID to its connection record. Each Subscriber
// owns one registry; a tenant appears at most once per registry.
//
// Thread Safety: safe for concurrent use. Snapshot returns a copy so
// callers can iterate without holding the registry lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Get(tenant string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[tenant]
	return c, ok
}

// GetOrCreate returns the record for tenant, creating a fresh
// StatusInitializing record if none exists.
func (r *Registry) GetOrCreate(tenant string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[tenant]; ok {
		return c
	}
	c := NewConnection()
	r.conns[tenant] = c
	return c
}

// Remove deletes the record and returns it so the caller can tear down
// the transport outside the lock. Returns nil if the tenant is unknown.
func (r *Registry) Remove(tenant string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[tenant]
	delete(r.conns, tenant)
	return c
}

// Snapshot copies the current tenant set. The records themselves are
// shared; their own locking covers field access.
func (r *Registry) Snapshot() map[string]*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Connection, len(r.conns))
	for tenant, c := range r.conns {
		out[tenant] = c
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
