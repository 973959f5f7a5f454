package websocket

import (
	"sync"
)

type entry struct {
	code string
	name string
	conn *Connection
}

// Registry is the process-local map from connection identity to (session
// code, participant name). It tracks which participants currently hold a
// live transport connection; the persisted roster stays in the store. The
// registry is rebuilt empty on process restart.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*entry // code -> connID -> entry
	conns map[string]*entry            // connID -> entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*entry),
		conns: make(map[string]*entry),
	}
}

// Register records a live connection for a participant in a room. Multiple
// connections may map to the same participant name (duplicate tabs).
func (r *Registry) Register(code, name string, conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{code: code, name: name, conn: conn}
	if r.rooms[code] == nil {
		r.rooms[code] = make(map[string]*entry)
	}
	r.rooms[code][conn.ID()] = e
	r.conns[conn.ID()] = e
}

// Unregister removes one connection. Presence for the participant survives
// as long as another of their connections remains. Idempotent.
func (r *Registry) Unregister(code, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[code]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, code)
		}
	}
	delete(r.conns, connID)
}

// LivePresence returns the distinct participant names with at least one
// live connection in the room.
func (r *Registry) LivePresence(code string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, e := range r.rooms[code] {
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	return names
}

// HasPresence reports whether a participant has at least one live
// connection in the room.
func (r *Registry) HasPresence(code, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.rooms[code] {
		if e.name == name {
			return true
		}
	}
	return false
}

// Prune drops registry presence for names no longer in the persisted
// roster, guarding against names lingering after external removal. The
// pruned connections are closed; their participants must rejoin. Returns
// the removed names.
func (r *Registry) Prune(code string, roster []string) []string {
	rostered := make(map[string]bool, len(roster))
	for _, name := range roster {
		rostered[name] = true
	}

	r.mu.Lock()
	var stale []*entry
	seen := make(map[string]bool)
	var removed []string
	for connID, e := range r.rooms[code] {
		if rostered[e.name] {
			continue
		}
		stale = append(stale, e)
		delete(r.rooms[code], connID)
		delete(r.conns, connID)
		if !seen[e.name] {
			seen[e.name] = true
			removed = append(removed, e.name)
		}
	}
	if room, ok := r.rooms[code]; ok && len(room) == 0 {
		delete(r.rooms, code)
	}
	r.mu.Unlock()

	// Close outside the lock; Close cancels the writer goroutine which may
	// itself be blocked on a write.
	for _, e := range stale {
		_ = e.conn.Close()
	}
	return removed
}

// Connections returns all live connections in a room.
func (r *Registry) Connections(code string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.rooms[code]))
	for _, e := range r.rooms[code] {
		conns = append(conns, e.conn)
	}
	return conns
}

// Get returns a single registered connection by id.
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// CloseAll closes every registered connection and clears the registry.
// Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	r.rooms = make(map[string]map[string]*entry)
	r.conns = make(map[string]*entry)
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.conns),
		"active_rooms":      len(r.rooms),
	}
}
