// Package presence tracks live connections: which username each one is
// bound to and when it was last heard from. It drives broadcast fan-out,
// directed sends and idle eviction.
//
// The table's mutex guards the map only; frames are written outside the
// lock (the framing codec serializes writers per connection), so a slow
// peer cannot stall unrelated protocol operations.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Sender is the outbound half of a connection as the table sees it.
// *protocol.Conn satisfies it.
type Sender interface {
	WriteFrame(text string) error
	Close() error
}

// Client is one live, joined connection.
type Client struct {
	ID       string // uuid assigned at accept
	Username string
	Conn     Sender

	lastSeen time.Time // guarded by the table's mutex
}

// Table is the connection registry.
type Table struct {
	mu      sync.Mutex
	clients map[string]*Client

	now func() time.Time // test seam
}

func NewTable() *Table {
	return &Table{
		clients: make(map[string]*Client),
		now:     time.Now,
	}
}

// Register adds a joined connection to the table.
func (t *Table) Register(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.lastSeen = t.now()
	t.clients[c.ID] = c
}

// Unregister removes the connection and reports whether it was present.
// Idempotent: a connection already removed (e.g. by a ban kick) is not
// cleaned up twice.
func (t *Table) Unregister(id string) (*Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[id]
	if ok {
		delete(t.clients, id)
	}
	return c, ok
}

// Touch updates the connection's last-seen time. Called for every frame
// received, including keepalive pings.
func (t *Table) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[id]; ok {
		c.lastSeen = t.now()
	}
}

// Username returns the username bound to the connection.
func (t *Table) Username(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[id]
	if !ok {
		return "", false
	}
	return c.Username, true
}

// ListOnline returns the sorted set of usernames with a live connection.
func (t *Table) ListOnline() []string {
	t.mu.Lock()
	seen := make(map[string]struct{}, len(t.clients))
	for _, c := range t.clients {
		seen[c.Username] = struct{}{}
	}
	t.mu.Unlock()

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether any live connection is bound to username.
func (t *Table) IsOnline(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		if c.Username == username {
			return true
		}
	}
	return false
}

// FindAll returns every live connection bound to username. Multiple logins
// are possible until stale sockets idle out, so ban kicks must hit them all.
func (t *Table) FindAll(username string) []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Client
	for _, c := range t.clients {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out
}

// Rename rebinds every live connection of oldName to newName.
func (t *Table) Rename(oldName, newName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		if c.Username == oldName {
			c.Username = newName
		}
	}
}

// Broadcast best-effort sends text to every live connection except
// excludeID (empty = nobody excluded). A failing connection is closed and
// silently dropped from the table, never retried; the send still completes
// for everyone else. Returns the number of dropped connections.
func (t *Table) Broadcast(text string, excludeID string) int {
	t.mu.Lock()
	targets := make([]*Client, 0, len(t.clients))
	for id, c := range t.clients {
		if id == excludeID {
			continue
		}
		targets = append(targets, c)
	}
	t.mu.Unlock()

	var failed []*Client
	for _, c := range targets {
		if err := c.Conn.WriteFrame(text); err != nil {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		if _, ok := t.Unregister(c.ID); ok {
			c.Conn.Close()
		}
	}
	return len(failed)
}

// SendToUser sends text to the (at most one) connection bound to username
// and reports whether a live connection existed. On send failure the
// connection is dropped and false is returned.
func (t *Table) SendToUser(username, text string) bool {
	t.mu.Lock()
	var target *Client
	for _, c := range t.clients {
		if c.Username == username {
			target = c
			break
		}
	}
	t.mu.Unlock()

	if target == nil {
		return false
	}
	if err := target.Conn.WriteFrame(text); err != nil {
		if _, ok := t.Unregister(target.ID); ok {
			target.Conn.Close()
		}
		return false
	}
	return true
}

// Expired returns the connections silent for longer than timeout. The
// caller evicts them; the snapshot keeps the lock scope small.
func (t *Table) Expired(timeout time.Duration) []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-timeout)
	var out []*Client
	for _, c := range t.clients {
		if c.lastSeen.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of live connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
