package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"secure_messenger/internal/protocol"
)

// ConnID is the stable handle of one live websocket connection.
type ConnID uint64

// Identity is what a client declared at JOIN plus the id the relay assigned.
type Identity struct {
	ID        string
	Username  string
	Avatar    string
	PublicKey json.RawMessage
}

// Entry is one joined connection.
type Entry struct {
	Conn ConnID
	Identity
	Room string
	seq  uint64
}

// Member converts the entry into a roster row.
func (e Entry) Member() protocol.Member {
	return protocol.Member{
		ID:        e.ID,
		Username:  e.Username,
		Avatar:    e.Avatar,
		PublicKey: e.PublicKey,
		Room:      e.Room,
		Status:    protocol.StatusOnline,
	}
}

// Registry maps live connections to identities. Rooms are not stored
// separately; membership is a filter over the entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[ConnID]*Entry
	byID    map[string]ConnID
	seq     uint64
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[ConnID]*Entry),
		byID:    make(map[string]ConnID),
	}
}

// Add registers conn under ident in room.
func (r *Registry) Add(conn ConnID, ident Identity, room string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[conn]; ok {
		return Entry{}, fmt.Errorf("connection %d already registered", conn)
	}
	if _, ok := r.byID[ident.ID]; ok {
		return Entry{}, fmt.Errorf("identity %s already registered", ident.ID)
	}

	r.seq++
	e := &Entry{Conn: conn, Identity: ident, Room: room, seq: r.seq}
	r.entries[conn] = e
	r.byID[ident.ID] = conn
	return *e, nil
}

// Remove drops conn and returns the entry it had.
func (r *Registry) Remove(conn ConnID) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[conn]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, conn)
	delete(r.byID, e.ID)
	return *e, true
}

// UpdateRoom moves conn to room and returns the room it left.
func (r *Registry) UpdateRoom(conn ConnID, room string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[conn]
	if !ok {
		return "", false
	}
	old := e.Room
	e.Room = room
	return old, true
}

// Lookup returns the entry for conn.
func (r *Registry) Lookup(conn ConnID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[conn]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ConnByID resolves an identity id to its connection.
func (r *Registry) ConnByID(id string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byID[id]
	return conn, ok
}

// ListByRoom returns a copy of the room's entries in join order.
func (r *Registry) ListByRoom(room string) []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Room == room {
			out = append(out, *e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Rooms returns the member count of every non-empty room.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]int)
	for _, e := range r.entries {
		rooms[e.Room]++
	}
	return rooms
}

// Len returns the number of joined connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Roster renders the room's members as a USER_LIST payload.
func (r *Registry) Roster(room string) *protocol.UserList {
	entries := r.ListByRoom(room)
	members := make([]protocol.Member, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.Member())
	}
	return &protocol.UserList{Members: members}
}
