package presence

import (
	"sort"
	"time"
)

const firstID = 1

// ClientRecord is one active connection on the presence channel.
type ClientRecord struct {
	ID          int
	Token       string
	ConnectedAt time.Time
}

// RosterEntry is the public projection of a ClientRecord. The connection
// token is transport plumbing and never leaves the registry.
type RosterEntry struct {
	ID             int       `json:"id"`
	ConnectionTime time.Time `json:"connectionTime"`
}

// Registry holds the active clients in connection order and the next-id
// counter. It is not safe for concurrent use; the Coordinator owns it.
type Registry struct {
	clients []ClientRecord
	nextID  int
	now     func() time.Time
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for ConnectedAt.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{nextID: firstID, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers token under the next id. A token that is already present
// keeps its existing record.
func (r *Registry) Add(token string) ClientRecord {
	if idx := r.indexOf(token); idx >= 0 {
		return r.clients[idx]
	}
	record := ClientRecord{
		ID:          r.nextID,
		Token:       token,
		ConnectedAt: r.now().UTC(),
	}
	r.nextID++
	r.clients = append(r.clients, record)
	return record
}

// Remove drops the record for token. The boolean is false when no such
// record exists, which callers treat as a no-op.
func (r *Registry) Remove(token string) (ClientRecord, bool) {
	idx := r.indexOf(token)
	if idx < 0 {
		return ClientRecord{}, false
	}
	record := r.clients[idx]
	r.clients = append(r.clients[:idx], r.clients[idx+1:]...)
	return record, true
}

// List returns the roster sorted by ascending id.
func (r *Registry) List() []RosterEntry {
	roster := make([]RosterEntry, 0, len(r.clients))
	for _, client := range r.clients {
		roster = append(roster, RosterEntry{ID: client.ID, ConnectionTime: client.ConnectedAt})
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].ID < roster[j].ID
	})
	return roster
}

func (r *Registry) Count() int {
	return len(r.clients)
}

// NextID reports the id the next Add will hand out.
func (r *Registry) NextID() int {
	return r.nextID
}

// ResetIDSequence rewinds the counter to 1. Existing records are left alone.
func (r *Registry) ResetIDSequence() {
	r.nextID = firstID
}

func (r *Registry) indexOf(token string) int {
	for i := range r.clients {
		if r.clients[i].Token == token {
			return i
		}
	}
	return -1
}
